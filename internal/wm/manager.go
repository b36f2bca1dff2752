package wm

import (
	"fmt"
	"os"

	"poe-autotrade/pkg/logger"
)

type backend string

const (
	backendHyprland backend = "hyprland"
	backendX11      backend = "x11"
)

// Manager picks the window backend for the running session and forwards
// lookups and focus requests to it.
type Manager struct {
	wm WindowManager
}

// selectBackend decides from the environment which backend drives the
// session. Wayland is only supported under Hyprland.
func selectBackend(getenv func(string) string) (backend, error) {
	session := getenv("XDG_SESSION_TYPE")
	switch {
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return backendHyprland, nil
	case session == "wayland":
		return "", fmt.Errorf("unsupported Wayland compositor: only Hyprland is supported")
	case session == "x11", session == "" && getenv("DISPLAY") != "":
		return backendX11, nil
	default:
		return "", fmt.Errorf("unsupported session type: %q", session)
	}
}

func NewManager(log *logger.Logger) (*Manager, error) {
	b, err := selectBackend(os.Getenv)
	if err != nil {
		return nil, err
	}
	log.Info("Session detected", "session", os.Getenv("XDG_SESSION_TYPE"), "backend", string(b))

	var w WindowManager
	switch b {
	case backendHyprland:
		w, err = NewHyprland(log)
	case backendX11:
		w, err = NewX11(log)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s support: %w", b, err)
	}
	return NewManagerWith(w), nil
}

func NewManagerWith(w WindowManager) *Manager {
	return &Manager{wm: w}
}

func (m *Manager) FindWindow(classNames []string, titles []string) (Window, error) {
	return m.wm.FindWindow(classNames, titles)
}

func (m *Manager) FocusWindow(w Window) error {
	return m.wm.FocusWindow(w)
}

// GetWMName returns the backend name, e.g. for the startup log.
func (m *Manager) GetWMName() string {
	return m.wm.Name()
}
