// Package browserlaunch finds or launches a Chromium-family browser
// with CDP enabled. Grounded on the reference repo's
// internal/browser/chrome.go, trimmed of Nebo's profile-branding
// bootstrap (a per-product cosmetic concern) and generalized from a
// single managed profile to the spec's tab/target model: this package
// only needs to produce one reachable CDP endpoint.
package browserlaunch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cdpstep/cdpstep/internal/config"
)

// BrowserKind identifies the type of Chromium-based browser found.
type BrowserKind string

const (
	BrowserChrome   BrowserKind = "chrome"
	BrowserBrave    BrowserKind = "brave"
	BrowserEdge     BrowserKind = "edge"
	BrowserChromium BrowserKind = "chromium"
	BrowserCanary   BrowserKind = "canary"
	BrowserCustom   BrowserKind = "custom"
)

// Executable is a found browser binary.
type Executable struct {
	Kind BrowserKind
	Path string
}

// Running is a launched Chrome process.
type Running struct {
	PID         int
	Executable  *Executable
	UserDataDir string
	CDPPort     int
	StartedAt   time.Time
	cmd         *exec.Cmd
}

// Find locates a Chrome/Chromium-family binary, preferring the
// system's configured default browser if it is Chromium-based.
func Find(customPath string) (*Executable, error) {
	if customPath != "" {
		if !fileExists(customPath) {
			return nil, fmt.Errorf("browser executable not found: %s", customPath)
		}
		return &Executable{Kind: BrowserCustom, Path: customPath}, nil
	}

	if exe := detectDefaultChromium(); exe != nil {
		return exe, nil
	}

	switch runtime.GOOS {
	case "darwin":
		return findChromeMac(), nil
	case "linux":
		return findChromeLinux(), nil
	case "windows":
		return findChromeWindows(), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// IsReachable checks whether Chrome's CDP HTTP endpoint is responding.
func IsReachable(cdpURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	versionURL := strings.TrimSuffix(cdpURL, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, "GET", versionURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// WebSocketURL fetches the browser-level CDP WebSocket endpoint.
func WebSocketURL(cdpURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	versionURL := strings.TrimSuffix(cdpURL, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, "GET", versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", err
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no webSocketDebuggerUrl in response")
	}
	return version.WebSocketDebuggerURL, nil
}

// Launch starts a Chromium browser with remote debugging enabled on
// cfg.CDPPort, using userDataDir for its profile.
func Launch(cfg *config.ResolvedConfig, userDataDir string) (*Running, error) {
	exe, err := Find(cfg.ExecutablePath)
	if err != nil {
		return nil, err
	}
	if exe == nil {
		return nil, fmt.Errorf("no supported browser found (Chrome/Brave/Edge/Chromium)")
	}

	if err := os.MkdirAll(userDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user data dir: %w", err)
	}

	args := buildArgs(userDataDir, cfg.CDPPort, cfg)
	cmd := exec.Command(exe.Path, args...)
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}

	running := &Running{
		PID:         cmd.Process.Pid,
		Executable:  exe,
		UserDataDir: userDataDir,
		CDPPort:     cfg.CDPPort,
		StartedAt:   time.Now(),
		cmd:         cmd,
	}

	cdpURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.CDPPort)
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if IsReachable(cdpURL, 500*time.Millisecond) {
			return running, nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	return nil, fmt.Errorf("browser CDP did not start on port %d within 15s", cfg.CDPPort)
}

// Stop gracefully stops a running browser, force-killing after timeout.
func Stop(running *Running, timeout time.Duration) error {
	if running == nil || running.cmd == nil || running.cmd.Process == nil {
		return nil
	}
	_ = running.cmd.Process.Signal(os.Interrupt)

	done := make(chan error, 1)
	go func() { done <- running.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return running.cmd.Process.Kill()
	}
}

func buildArgs(userDataDir string, cdpPort int, cfg *config.ResolvedConfig) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", cdpPort),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-sync",
		"--disable-background-networking",
		"--disable-component-update",
		"--disable-features=Translate,MediaRouter",
		"--disable-session-crashed-bubble",
		"--password-store=basic",
	}
	if cfg.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	if cfg.NoSandbox {
		args = append(args, "--no-sandbox", "--disable-setuid-sandbox")
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}
	args = append(args, "about:blank")
	return args
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func findChromeMac() *Executable {
	home := os.Getenv("HOME")
	candidates := []Executable{
		{BrowserChrome, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		{BrowserChrome, filepath.Join(home, "Applications/Google Chrome.app/Contents/MacOS/Google Chrome")},
		{BrowserBrave, "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"},
		{BrowserEdge, "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		{BrowserChromium, "/Applications/Chromium.app/Contents/MacOS/Chromium"},
		{BrowserCanary, "/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"},
	}
	for _, c := range candidates {
		if fileExists(c.Path) {
			v := c
			return &v
		}
	}
	return nil
}

func findChromeLinux() *Executable {
	candidates := []Executable{
		{BrowserChrome, "/usr/bin/google-chrome"},
		{BrowserChrome, "/usr/bin/google-chrome-stable"},
		{BrowserChrome, "/usr/bin/chrome"},
		{BrowserBrave, "/usr/bin/brave-browser"},
		{BrowserBrave, "/snap/bin/brave"},
		{BrowserEdge, "/usr/bin/microsoft-edge"},
		{BrowserChromium, "/usr/bin/chromium"},
		{BrowserChromium, "/usr/bin/chromium-browser"},
		{BrowserChromium, "/snap/bin/chromium"},
	}
	for _, c := range candidates {
		if fileExists(c.Path) {
			v := c
			return &v
		}
	}
	return nil
}

func findChromeWindows() *Executable {
	localAppData := os.Getenv("LOCALAPPDATA")
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}

	var candidates []Executable
	if localAppData != "" {
		candidates = append(candidates,
			Executable{BrowserChrome, filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe")},
			Executable{BrowserBrave, filepath.Join(localAppData, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")},
			Executable{BrowserEdge, filepath.Join(localAppData, "Microsoft", "Edge", "Application", "msedge.exe")},
		)
	}
	candidates = append(candidates,
		Executable{BrowserChrome, filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
		Executable{BrowserEdge, filepath.Join(programFiles, "Microsoft", "Edge", "Application", "msedge.exe")},
	)
	for _, c := range candidates {
		if fileExists(c.Path) {
			v := c
			return &v
		}
	}
	return nil
}

func detectDefaultChromium() *Executable {
	switch runtime.GOOS {
	case "darwin":
		return detectDefaultChromiumMac()
	case "linux":
		return detectDefaultChromiumLinux()
	default:
		return nil
	}
}

func detectDefaultChromiumMac() *Executable {
	out, err := execCommand("osascript", "-e", `
		use framework "AppKit"
		set ws to current application's NSWorkspace's sharedWorkspace()
		set defaultBrowser to ws's URLForApplicationToOpenURL:(current application's NSURL's URLWithString:"https://")
		if defaultBrowser is missing value then return ""
		return (defaultBrowser's |path|() as text)
	`)
	if err != nil {
		return nil
	}
	bundlePath := strings.TrimSpace(string(out))
	if bundlePath == "" {
		return nil
	}
	chromiumBundles := map[string]BrowserKind{
		"Google Chrome.app": BrowserChrome,
		"Brave Browser.app": BrowserBrave,
		"Microsoft Edge.app": BrowserEdge,
		"Chromium.app":       BrowserChromium,
	}
	for name, kind := range chromiumBundles {
		if strings.Contains(bundlePath, name) {
			exeName := strings.TrimSuffix(name, ".app")
			exePath := filepath.Join(bundlePath, "Contents", "MacOS", exeName)
			if fileExists(exePath) {
				return &Executable{Kind: kind, Path: exePath}
			}
		}
	}
	return nil
}

func detectDefaultChromiumLinux() *Executable {
	out, err := execCommand("xdg-settings", "get", "default-web-browser")
	if err != nil {
		return nil
	}
	desktopID := strings.TrimSpace(string(out))
	chromiumDesktops := map[string]bool{
		"google-chrome.desktop": true, "google-chrome-stable.desktop": true,
		"brave-browser.desktop": true, "microsoft-edge.desktop": true,
		"chromium.desktop": true, "chromium-browser.desktop": true,
	}
	if !chromiumDesktops[desktopID] {
		return nil
	}
	return findChromeLinux()
}

func execCommand(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
