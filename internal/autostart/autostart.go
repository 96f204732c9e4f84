// Package autostart manages the XDG autostart entry that launches the daemon at login.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileName = "system-bridge.desktop"

const entryTemplate = `[Desktop Entry]
Type=Application
Name=System Bridge
Comment=Exposes system telemetry to local and remote clients
Exec=%s
Terminal=false
X-GNOME-Autostart-enabled=true
`

type Manager struct {
	dir  string
	exec string
}

// New targets $XDG_CONFIG_HOME/autostart (or ~/.config/autostart) and
// launches the running executable.
func New() (*Manager, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &Manager{dir: filepath.Join(dir, "autostart"), exec: exe}, nil
}

// Path of the desktop entry.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, fileName)
}

// Apply writes the entry when enabled and removes it otherwise.
func (m *Manager) Apply(enabled bool) error {
	if !enabled {
		if err := os.Remove(m.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove autostart entry: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create autostart dir: %w", err)
	}
	content := fmt.Sprintf(entryTemplate, quoteExec(m.exec))
	if err := os.WriteFile(m.Path(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}
	return nil
}

// Enabled reports whether the entry exists.
func (m *Manager) Enabled() bool {
	_, err := os.Stat(m.Path())
	return err == nil
}

func quoteExec(path string) string {
	if !strings.ContainsAny(path, " \t\"") {
		return path
	}
	return `"` + strings.ReplaceAll(path, `"`, `\"`) + `"`
}
