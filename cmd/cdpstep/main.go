// Command cdpstep is the thin command-line wrapper §1 calls an
// external collaborator: it parses one JSON request per invocation,
// wires up the CDP transport and persisted state the core engine
// consumes through narrow interfaces, runs the request, and prints the
// single JSON response. Grounded on the reference repo's cmd/nebo
// root command (github.com/spf13/cobra) and nebo.go's config-then-run
// main(), replacing its long-lived server/agent bootstrap with a
// one-shot "attach, run, print" flow.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/cdpstep/cdpstep/internal/browserlaunch"
	"github.com/cdpstep/cdpstep/internal/cdp/chromedpsession"
	"github.com/cdpstep/cdpstep/internal/config"
	"github.com/cdpstep/cdpstep/internal/debuglog"
	"github.com/cdpstep/cdpstep/internal/framestate"
	"github.com/cdpstep/cdpstep/internal/logging"
	"github.com/cdpstep/cdpstep/internal/pagectl"
	"github.com/cdpstep/cdpstep/internal/paths"
	"github.com/cdpstep/cdpstep/internal/registry"
	"github.com/cdpstep/cdpstep/internal/runner"
	"github.com/cdpstep/cdpstep/internal/steps"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		tab         string
		requestFile string
		configFile  string
		stateDir    string
		cdpURL      string
		headless    bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "cdpstep",
		Short: "Run a declarative sequence of browser steps over CDP",
		Long: `cdpstep drives a Chromium-family browser over the Chrome DevTools
Protocol. One invocation reads one JSON request (steps to execute) and
prints one JSON response.

Examples:
  echo '{"steps":[{"goto":{"url":"https://example.com"}}]}' | cdpstep
  cdpstep --tab tab1 -f steps.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logging.SetStepLevel("debug")
			}
			req, err := readRequest(requestFile)
			if err != nil {
				return fmt.Errorf("read request: %w", err)
			}
			if tab != "" {
				req.Tab = tab
			}

			cfg := config.DefaultConfig()
			if configFile != "" {
				if loaded, err := config.Load(configFile); err == nil {
					cfg = loaded
				} else {
					return fmt.Errorf("load config: %w", err)
				}
			}
			if stateDir != "" {
				cfg.StateDir = stateDir
			}
			if cdpURL != "" {
				cfg.CDPURL = cdpURL
			}
			if cmd.Flags().Changed("headless") {
				cfg.Headless = &headless
			}
			resolved := config.ResolveConfig(cfg)

			resp, err := runOnce(context.Background(), resolved, req)
			if err != nil {
				return err
			}

			out, err := runner.MarshalResponse(resp)
			if err != nil {
				return fmt.Errorf("marshal response: %w", err)
			}
			fmt.Println(string(out))
			os.Exit(runner.ExitCode(resp))
			return nil
		},
	}

	cmd.Flags().StringVar(&tab, "tab", "", "tab alias or target id (overrides the request's \"tab\")")
	cmd.Flags().StringVarP(&requestFile, "file", "f", "", "read the JSON request from this file instead of stdin")
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a JSON config file")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "override the persisted state directory")
	cmd.Flags().StringVar(&cdpURL, "cdp-url", "", "attach to an already-running browser at this CDP URL")
	cmd.Flags().BoolVar(&headless, "headless", true, "launch a managed browser headlessly")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level step logging")

	return cmd
}

func readRequest(path string) (steps.Request, error) {
	var data []byte
	var err error
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return steps.Request{}, err
	}
	var req steps.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return steps.Request{}, fmt.Errorf("invalid JSON request: %w", err)
	}
	return req, nil
}

// runOnce wires the external collaborators §6 names (CDP transport,
// tab registry, frame-state store, temp-path resolver) and hands the
// core engine its single request.
func runOnce(ctx context.Context, cfg *config.ResolvedConfig, req steps.Request) (runner.Response, error) {
	stateDir, err := paths.StateDir(cfg.StateDir)
	if err != nil {
		return runner.Response{}, err
	}

	reg, err := registry.Open(stateDir)
	if err != nil {
		return runner.Response{}, fmt.Errorf("open tab registry: %w", err)
	}
	defer reg.Close()

	frames, err := framestate.Open(stateDir)
	if err != nil {
		return runner.Response{}, fmt.Errorf("open frame state: %w", err)
	}

	wsURL, err := ensureBrowser(cfg)
	if err != nil {
		return runner.Response{}, fmt.Errorf("connect to browser: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	defer allocCancel()

	alias, targetID := resolveTab(req.Tab, reg)

	session, err := chromedpsession.Attach(allocCtx, targetID)
	if err != nil {
		return runner.Response{}, fmt.Errorf("attach to tab: %w", err)
	}
	defer session.Close()

	if alias == "" {
		alias, err = reg.Add("", registry.Tab{TargetID: session.TargetID()})
		if err != nil {
			return runner.Response{}, fmt.Errorf("register tab: %w", err)
		}
	} else if targetID == "" {
		if _, err := reg.Add(alias, registry.Tab{TargetID: session.TargetID()}); err != nil {
			return runner.Response{}, fmt.Errorf("register tab: %w", err)
		}
	}

	controller := &pagectl.Controller{Session: session, TargetID: session.TargetID(), Frames: frames}

	var dbg *debuglog.Writer
	if cfg.DebugLog {
		dbg = debuglog.New(filepath.Join(stateDir, "debug"))
	}

	r := &runner.Runner{
		Session:            session,
		Controller:         controller,
		Registry:           reg,
		StateDir:           stateDir,
		TabAlias:           alias,
		DefaultStepTimeout: cfg.StepTimeout,
		DebugLog:           dbg,
	}

	resp := r.Run(ctx, req)
	return resp, nil
}

// resolveTab looks up req's tab field in the registry. An alias not
// yet registered is returned as-is with an empty targetID, so the
// fresh tab chromedpsession.Attach opens gets registered under it;
// a registry hit reuses that tab's existing target.
func resolveTab(tab string, reg *registry.Registry) (alias, targetID string) {
	if tab == "" {
		return "", ""
	}
	if t, ok := reg.Get(tab); ok {
		return tab, t.TargetID
	}
	return tab, ""
}

// ensureBrowser finds a reachable CDP endpoint, launching a managed
// browser if cfg.CDPURL isn't already serving one.
func ensureBrowser(cfg *config.ResolvedConfig) (string, error) {
	const reachTimeout = 2 * time.Second
	if browserlaunch.IsReachable(cfg.CDPURL, reachTimeout) {
		return browserlaunch.WebSocketURL(cfg.CDPURL, reachTimeout)
	}

	userDataDir, err := os.MkdirTemp("", "cdpstep-profile-*")
	if err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	if _, err := browserlaunch.Launch(cfg, userDataDir); err != nil {
		return "", err
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if browserlaunch.IsReachable(cfg.CDPURL, reachTimeout) {
			return browserlaunch.WebSocketURL(cfg.CDPURL, reachTimeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return "", fmt.Errorf("browser did not become reachable at %s", cfg.CDPURL)
}
