// Package paths resolves OS-appropriate absolute paths for the
// runtime's persisted state and output artifacts (screenshots, PDFs),
// the "temp-path resolver" external collaborator from §6.4. Grounded
// on the reference browser package's resolveUserDataDir.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// StateDir returns the directory persisted state (tab registry, frame
// state, debug logs) lives in, creating it if needed.
func StateDir(override string) (string, error) {
	dir := override
	if dir == "" {
		dir = defaultBase()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// OutputPath builds a path for a screenshot/PDF artifact under the
// state dir's "output" subdirectory, named by invocation and kind.
func OutputPath(stateDir, name, ext string) (string, error) {
	dir := filepath.Join(stateDir, "output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(dir, name+"."+ext), nil
}

func defaultBase() string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "cdpstep")
		}
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, "cdpstep")
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "cdpstep")
		}
	}
	return filepath.Join(os.TempDir(), "cdpstep")
}
