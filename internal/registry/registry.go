// Package registry persists the tab alias → target mapping described
// in §6.2: a JSON file keyed by the platform state directory, with
// atomic add/remove, reverse lookup, and a monotonic alias counter.
// Grounded on the reference browser package's JSON-file persistence
// style (internal/browser/storage.go) generalized from cookies/storage
// to the tab registry's own shape.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Tab is one registered tab/target.
type Tab struct {
	TargetID string `json:"targetId"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// fileFormat is the on-disk JSON shape from §6: {tabs, nextId}.
type fileFormat struct {
	Tabs   map[string]Tab `json:"tabs"`
	NextID int            `json:"nextId"`
}

// Registry is a file-backed alias → Tab store. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	path     string
	data     fileFormat
	watcher  *fsnotify.Watcher
	watchErr error
}

// Open loads (or initializes) the registry file at dir/tabs.json and
// starts watching it for external changes (another invocation, or a
// human editing it by hand).
func Open(dir string) (*Registry, error) {
	path := filepath.Join(dir, "tabs.json")
	r := &Registry{path: path, data: fileFormat{Tabs: map[string]Tab{}}}
	if err := r.load(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := w.Add(dir); werr == nil {
			r.watcher = w
			go r.watchLoop()
		} else {
			_ = w.Close()
			r.watchErr = werr
		}
	} else {
		r.watchErr = err
	}
	return r, nil
}

func (r *Registry) watchLoop() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == filepath.Clean(r.path) {
				r.mu.Lock()
				_ = r.loadLocked()
				r.mu.Unlock()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the file watcher, if any.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Registry) loadLocked() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.data = fileFormat{Tabs: map[string]Tab{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read tab registry: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse tab registry: %w", err)
	}
	if ff.Tabs == nil {
		ff.Tabs = map[string]Tab{}
	}
	r.data = ff
	return nil
}

func (r *Registry) saveLocked() error {
	tmp := r.path + ".tmp"
	b, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tab registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write tab registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// Add registers tab under a fresh or given alias. If alias is empty, a
// new one is minted from the monotonic counter ("tab1", "tab2", ...).
func (r *Registry) Add(alias string, tab Tab) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if alias == "" {
		r.data.NextID++
		alias = fmt.Sprintf("tab%d", r.data.NextID)
	}
	r.data.Tabs[alias] = tab
	if err := r.saveLocked(); err != nil {
		return "", err
	}
	return alias, nil
}

// Remove deletes alias from the registry. A missing alias is not an error.
func (r *Registry) Remove(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data.Tabs, alias)
	return r.saveLocked()
}

// Get returns the tab registered under alias.
func (r *Registry) Get(alias string) (Tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data.Tabs[alias]
	return t, ok
}

// List returns all registered alias → Tab pairs.
func (r *Registry) List() map[string]Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Tab, len(r.data.Tabs))
	for k, v := range r.data.Tabs {
		out[k] = v
	}
	return out
}

// ReverseLookup returns the alias registered for a given targetID, if any.
func (r *Registry) ReverseLookup(targetID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for alias, t := range r.data.Tabs {
		if t.TargetID == targetID {
			return alias, true
		}
	}
	return "", false
}
