// Package config resolves the runtime's configuration, following the
// reference browser package's Config/ResolvedConfig split: the input
// struct carries only what the caller set, ResolveConfig fills in
// every default so the rest of the engine never branches on a zero
// value.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the user-facing configuration (JSON file or env).
type Config struct {
	// ExecutablePath overrides auto-detection of a Chromium browser.
	ExecutablePath string `json:"executablePath,omitempty"`
	// Headless runs the managed browser without UI.
	Headless *bool `json:"headless,omitempty"`
	// NoSandbox disables the Chrome sandbox (useful in containers).
	NoSandbox bool `json:"noSandbox,omitempty"`
	// CDPPort is the Chrome DevTools Protocol port for the managed browser.
	CDPPort int `json:"cdpPort,omitempty"`
	// CDPURL overrides the CDP URL entirely, attaching to a browser this
	// process did not launch (e.g. one behind a relay).
	CDPURL string `json:"cdpUrl,omitempty"`
	// StepTimeout is the default per-step deadline (§5).
	StepTimeout time.Duration `json:"stepTimeout,omitempty"`
	// MaxTimeout bounds any caller-supplied timeout (§4.1).
	MaxTimeout time.Duration `json:"maxTimeout,omitempty"`
	// StateDir overrides where the tab registry / frame state live.
	StateDir string `json:"stateDir,omitempty"`
	// DebugLog turns on the append-only per-invocation debug log (§6).
	DebugLog bool `json:"debugLog,omitempty"`
}

// ResolvedConfig is the fully defaulted configuration the rest of the
// engine reads.
type ResolvedConfig struct {
	ExecutablePath string
	Headless       bool
	NoSandbox      bool
	CDPPort        int
	CDPURL         string
	StepTimeout    time.Duration
	MaxTimeout     time.Duration
	StateDir       string
	DebugLog       bool
}

const (
	DefaultCDPPort     = 9222
	DefaultStepTimeout = 30 * time.Second
	DefaultMaxTimeout  = 5 * time.Minute
)

// DefaultConfig returns the configuration used when no file or env
// overrides are present.
func DefaultConfig() Config {
	headless := true
	return Config{
		Headless:    &headless,
		CDPPort:     DefaultCDPPort,
		StepTimeout: DefaultStepTimeout,
		MaxTimeout:  DefaultMaxTimeout,
	}
}

// ResolveConfig fills in defaults without mutating cfg.
func ResolveConfig(cfg Config) *ResolvedConfig {
	def := DefaultConfig()

	resolved := &ResolvedConfig{
		ExecutablePath: cfg.ExecutablePath,
		Headless:       *def.Headless,
		NoSandbox:      cfg.NoSandbox,
		CDPPort:        cfg.CDPPort,
		CDPURL:         cfg.CDPURL,
		StepTimeout:    cfg.StepTimeout,
		MaxTimeout:     cfg.MaxTimeout,
		StateDir:       cfg.StateDir,
		DebugLog:       cfg.DebugLog,
	}
	if cfg.Headless != nil {
		resolved.Headless = *cfg.Headless
	}
	if resolved.CDPPort == 0 {
		resolved.CDPPort = DefaultCDPPort
	}
	if resolved.StepTimeout == 0 {
		resolved.StepTimeout = DefaultStepTimeout
	}
	if resolved.MaxTimeout == 0 {
		resolved.MaxTimeout = DefaultMaxTimeout
	}
	if resolved.StateDir == "" {
		resolved.StateDir = defaultStateDir()
	}
	if resolved.CDPURL == "" {
		resolved.CDPURL = fmt.Sprintf("http://127.0.0.1:%d", resolved.CDPPort)
	}
	return resolved
}

// defaultStateDir mirrors the reference repo's platform temp-dir
// convention (see internal/paths for the shared resolver).
func defaultStateDir() string {
	base := os.TempDir()
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, "Library", "Application Support")
		}
	}
	return filepath.Join(base, "cdpstep")
}

// Load reads a JSON config file, applying env var expansion for simple
// ${VAR} references the way the reference repo's YAML loader does.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	var c Config
	if err := json.Unmarshal([]byte(expanded), &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}
