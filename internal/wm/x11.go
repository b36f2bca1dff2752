package wm

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"poe-autotrade/pkg/logger"
)

type X11 struct {
	log *logger.Logger
}

func NewX11(log *logger.Logger) (WindowManager, error) {
	// Check if xdotool is available
	if _, err := exec.LookPath("xdotool"); err != nil {
		return nil, fmt.Errorf("xdotool is required for X11 support but was not found: %w", err)
	}
	return &X11{log: log}, nil
}

func (x *X11) Name() string {
	return "X11"
}

func (x *X11) FindWindow(classNames []string, titles []string) (Window, error) {
	for _, class := range classNames {
		out, err := exec.Command("xdotool", "search", "--class", class).Output()
		if err == nil && len(out) > 0 {
			// Get the first window ID (first line)
			windowID := strings.Split(strings.TrimSpace(string(out)), "\n")[0]

			titleOut, err := exec.Command("xdotool", "getwindowname", windowID).Output()
			if err == nil {
				return x.withGeometry(Window{
					ID:    windowID,
					Class: class,
					Title: strings.TrimSpace(string(titleOut)),
				}), nil
			}
		}
	}

	for _, title := range titles {
		out, err := exec.Command("xdotool", "search", "--name", title).Output()
		if err == nil && len(out) > 0 {
			windowID := strings.Split(strings.TrimSpace(string(out)), "\n")[0]

			classOut, err := exec.Command("xdotool", "getwindowclassname", windowID).Output()
			if err == nil {
				return x.withGeometry(Window{
					ID:    windowID,
					Class: strings.TrimSpace(string(classOut)),
					Title: title,
				}), nil
			}
		}
	}

	return Window{}, nil
}

func (x *X11) withGeometry(w Window) Window {
	out, err := exec.Command("xdotool", "getwindowgeometry", "--shell", w.ID).Output()
	if err != nil {
		x.log.Warn("Failed to read window geometry", "id", w.ID, "error", err.Error())
		return w
	}
	if err := parseShellGeometry(string(out), &w); err != nil {
		x.log.Warn("Failed to parse window geometry", "id", w.ID, "error", err.Error())
	}
	return w
}

// parseShellGeometry reads the X=, Y=, WIDTH= and HEIGHT= lines printed by
// xdotool getwindowgeometry --shell.
func parseShellGeometry(out string, w *Window) error {
	fields := map[string]*int{"X": &w.X, "Y": &w.Y, "WIDTH": &w.Width, "HEIGHT": &w.Height}
	seen := 0

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		dst, wanted := fields[key]
		if !wanted {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, value, err)
		}
		*dst = n
		seen++
	}
	if seen != len(fields) {
		return fmt.Errorf("incomplete geometry output: %q", out)
	}
	return nil
}

func (x *X11) FocusWindow(w Window) error {
	if w.ID == "" {
		return fmt.Errorf("cannot focus window: no window ID provided")
	}

	err := exec.Command("xdotool", "windowactivate", w.ID).Run()
	if err != nil {
		return fmt.Errorf("failed to focus window: %w", err)
	}

	// Small delay to ensure window is focused
	time.Sleep(100 * time.Millisecond)
	return nil
}
