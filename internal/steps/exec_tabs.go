package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cdpstep/cdpstep/internal/cdp"
	"github.com/cdpstep/cdpstep/internal/kinds"
	"github.com/cdpstep/cdpstep/internal/registry"
	"gopkg.in/yaml.v3"
)

// execCookies implements the cookies step: exactly one of
// get/set/clear/delete. Persistence itself belongs to the CDP session's
// Network domain (an external collaborator); this executor only shapes
// the request and human-readable expirations.
func (e *Executor) execCookies(ctx context.Context, step Step) (any, string, error) {
	var p CookiesParams
	if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	switch {
	case p.Set != nil:
		expires, err := parseExpiry(p.Set.Expires)
		if err != nil {
			return nil, "", kinds.Wrap(kinds.Validation, err)
		}
		c := cdp.Cookie{
			Name: p.Set.Name, Value: p.Set.Value, URL: p.Set.URL,
			Domain: p.Set.Domain, Path: p.Set.Path, Expires: expires,
			HTTPOnly: p.Set.HTTPOnly, Secure: p.Set.Secure,
		}
		if err := e.Session.SetCookie(ctx, c); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"set": true}, "", nil
	case p.Clear != nil && *p.Clear:
		if err := e.Session.ClearCookies(ctx); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"cleared": true}, "", nil
	case p.Delete != nil:
		if err := e.Session.DeleteCookie(ctx, p.Delete.Name, p.Delete.Domain, p.Delete.Path); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"deleted": true}, "", nil
	default:
		urlFilter := ""
		if p.Get != nil {
			cx, err := e.Controller.CurrentContext(ctx)
			if err == nil {
				if res, err := e.Session.Eval(ctx, cx, "location.href", nil, true, false); err == nil {
					if s, ok := res.Value.(string); ok {
						urlFilter = s
					}
				}
			}
		}
		cookies, err := e.Session.Cookies(ctx, urlFilter)
		if err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
		return map[string]any{"cookies": cookies}, "", nil
	}
}

// parseExpiry accepts either an empty string (session cookie), a raw
// Unix timestamp, or a human-readable offset Nm|Nh|Nd|Nw|Ny.
func parseExpiry(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid expiry %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q", s)
	}
	var d time.Duration
	switch unit {
	case 'm':
		d = time.Duration(n) * time.Minute
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'w':
		d = time.Duration(n) * 7 * 24 * time.Hour
	case 'y':
		d = time.Duration(n) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid expiry unit in %q", s)
	}
	return float64(time.Now().Add(d).Unix()), nil
}

// execListTabs reads the tab registry (§6 external collaborator #2) —
// no browser interaction required.
func (e *Executor) execListTabs(ctx context.Context, step Step) (any, string, error) {
	if e.Registry == nil {
		return map[string]any{"tabs": map[string]registry.Tab{}}, "", nil
	}
	return map[string]any{"tabs": e.Registry.List()}, "", nil
}

// execNewTab registers a fresh alias against the current session's
// target and reports url back as pendingURL. Process launching and CDP
// attach are out of this package's scope (§1 non-goals): no tab is
// opened, nothing is navigated, and the runner does not act on
// pendingURL.
func (e *Executor) execNewTab(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		URL string `json:"url"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.URL = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if e.Registry == nil {
		return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("no tab registry configured"))
	}
	alias, err := e.Registry.Add("", registry.Tab{TargetID: e.Session.TargetID()})
	if err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"alias": alias, "pendingURL": p.URL}, "", nil
}

// execCloseTab deregisters alias. The underlying target is not closed.
func (e *Executor) execCloseTab(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Alias string `json:"alias"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Alias = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if p.Alias == "" {
		p.Alias = e.TabAlias
	}
	if e.Registry == nil {
		return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("no tab registry configured"))
	}
	if err := e.Registry.Remove(p.Alias); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"closed": p.Alias}, "", nil
}

// execSwitchTab looks up alias's target and reports it with
// switchRequested set. This executor cannot itself swap e.Session
// mid-run since a session is scoped to one already-attached target, and
// the runner does not rebuild the Executor on switchRequested, so later
// steps in the same request still run against the current session.
func (e *Executor) execSwitchTab(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Alias string `json:"alias"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Alias = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	if e.Registry == nil {
		return nil, "", kinds.Wrap(kinds.Execution, fmt.Errorf("no tab registry configured"))
	}
	tab, ok := e.Registry.Get(p.Alias)
	if !ok {
		return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no tab registered under alias %q", p.Alias))
	}
	return map[string]any{"alias": p.Alias, "targetId": tab.TargetID, "switchRequested": true}, "", nil
}

// siteProfile is the persisted per-host shape writeSiteProfile/
// readSiteProfile manage: cookies captured so a later invocation can
// resume a session without replaying a login flow. Viewport is part of
// the file shape, but writeSiteProfile leaves it zero and
// readSiteProfile does not apply it.
type siteProfile struct {
	Host     string       `yaml:"host"`
	Cookies  []cdp.Cookie `yaml:"cookies"`
	Viewport [2]int       `yaml:"viewport"`
	SavedAt  string       `yaml:"savedAt"`
}

func siteProfilePath(stateDir, host string) string {
	safe := strings.NewReplacer("/", "_", ":", "_").Replace(host)
	return filepath.Join(stateDir, "profiles", safe+".yaml")
}

// execWriteSiteProfile snapshots the current tab's cookies (scoped to
// its own URL) to a per-host YAML file under the state directory.
func (e *Executor) execWriteSiteProfile(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Host string `json:"host"`
	}
	_ = json.Unmarshal(step.Params, &p)
	cx, err := e.Controller.CurrentContext(ctx)
	if err != nil {
		return nil, "", err
	}
	res, err := e.Session.Eval(ctx, cx, "location.hostname", nil, true, false)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.EvalError, err)
	}
	host := p.Host
	if host == "" {
		host, _ = res.Value.(string)
	}
	if host == "" {
		return nil, "", kinds.Wrap(kinds.Validation, fmt.Errorf("writeSiteProfile requires a host"))
	}
	urlFilter := ""
	if href, err := e.Session.Eval(ctx, cx, "location.href", nil, true, false); err == nil {
		urlFilter, _ = href.Value.(string)
	}
	cookies, err := e.Session.Cookies(ctx, urlFilter)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	profile := siteProfile{Host: host, Cookies: cookies, SavedAt: time.Now().UTC().Format(time.RFC3339)}
	b, err := yaml.Marshal(profile)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	path := siteProfilePath(e.StateDir, host)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	return map[string]any{"path": path, "cookies": len(cookies)}, "", nil
}

// execReadSiteProfile restores a previously written profile's cookies
// into the current tab.
func (e *Executor) execReadSiteProfile(ctx context.Context, step Step) (any, string, error) {
	var p struct {
		Host string `json:"host" validate:"required"`
	}
	var bare string
	if err := json.Unmarshal(step.Params, &bare); err == nil {
		p.Host = bare
	} else if err := decodeParams(step.Params, &p); err != nil {
		return nil, "", err
	}
	path := siteProfilePath(e.StateDir, p.Host)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", kinds.Wrap(kinds.ElementNotFound, fmt.Errorf("no saved profile for %q: %w", p.Host, err))
	}
	var profile siteProfile
	if err := yaml.Unmarshal(b, &profile); err != nil {
		return nil, "", kinds.Wrap(kinds.Execution, err)
	}
	for _, c := range profile.Cookies {
		if err := e.Session.SetCookie(ctx, c); err != nil {
			return nil, "", kinds.Wrap(kinds.Execution, err)
		}
	}
	return map[string]any{"restored": len(profile.Cookies), "savedAt": profile.SavedAt}, "", nil
}
