package wm

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"poe-autotrade/pkg/logger"
)

type Hyprland struct {
	log              *logger.Logger
	hasLoggedWaiting bool
	lastFoundWindow  Window
}

func NewHyprland(log *logger.Logger) (*Hyprland, error) {
	// Check if hyprctl is available
	path, err := exec.LookPath("hyprctl")
	if err != nil {
		log.Error("hyprctl not found in PATH", err)
		return nil, fmt.Errorf("hyprctl not found in PATH: %w", err)
	}
	log.Debug("Found hyprctl", "path", path)

	return &Hyprland{log: log}, nil
}

func (h *Hyprland) Name() string {
	return "Hyprland"
}

type hyprClient struct {
	Address string `json:"address"`
	Class   string `json:"class"`
	Title   string `json:"title"`
	At      [2]int `json:"at"`
	Size    [2]int `json:"size"`
}

func (c hyprClient) window() Window {
	return Window{
		Class:   c.Class,
		Title:   c.Title,
		Address: c.Address,
		X:       c.At[0],
		Y:       c.At[1],
		Width:   c.Size[0],
		Height:  c.Size[1],
	}
}

// findHyprClient picks the first client whose class, or failing that title,
// contains one of the wanted names, case-insensitively.
func findHyprClient(output []byte, classNames, titles []string) (Window, string, error) {
	if len(output) == 0 {
		return Window{}, "", nil
	}

	var clients []hyprClient
	if err := json.Unmarshal(output, &clients); err != nil {
		return Window{}, "", fmt.Errorf("failed to parse hyprctl output: %w", err)
	}

	for _, c := range clients {
		for _, class := range classNames {
			if strings.Contains(strings.ToLower(c.Class), strings.ToLower(class)) {
				return c.window(), "class", nil
			}
		}
		for _, title := range titles {
			if strings.Contains(strings.ToLower(c.Title), strings.ToLower(title)) {
				return c.window(), "title", nil
			}
		}
	}
	return Window{}, "", nil
}

func (h *Hyprland) FindWindow(classNames []string, titles []string) (Window, error) {
	output, err := exec.Command("hyprctl", "clients", "-j").CombinedOutput()
	if err != nil {
		h.log.Error("Failed to execute hyprctl", err, "output", string(output))
		return Window{}, fmt.Errorf("hyprctl error: %w", err)
	}

	found, by, err := findHyprClient(output, classNames, titles)
	if err != nil {
		h.log.Error("Failed to parse hyprctl output", err)
		return Window{}, err
	}

	if found.IsZero() {
		h.lastFoundWindow = Window{}
		if !h.hasLoggedWaiting {
			h.log.Info("Waiting for the game window...")
			h.hasLoggedWaiting = true
		}
		return Window{}, nil
	}

	// Only log if this is a different window than last time
	if found != h.lastFoundWindow {
		h.log.Debug("Found matching window",
			"by", by,
			"class", found.Class,
			"title", found.Title,
			"address", found.Address,
			"x", found.X, "y", found.Y,
			"width", found.Width, "height", found.Height)
		h.lastFoundWindow = found
	}
	h.hasLoggedWaiting = false
	return found, nil
}

func (h *Hyprland) FocusWindow(w Window) error {
	h.log.Debug("Focusing window", "address", w.Address)

	cmd := exec.Command("hyprctl", "dispatch", "focuswindow", "address:"+w.Address)
	if output, err := cmd.CombinedOutput(); err != nil {
		h.log.Error("Failed to focus window", err, "output", string(output))
		return fmt.Errorf("failed to focus window: %w", err)
	}

	time.Sleep(100 * time.Millisecond)
	return nil
}
