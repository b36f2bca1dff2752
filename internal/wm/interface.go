package wm

import (
	"errors"
	"image"
)

var ErrWindowNotFound = errors.New("window not found")

type WindowManager interface {
	// FindWindow looks for a window by class name or title
	FindWindow(classNames []string, titles []string) (Window, error)
	// FocusWindow brings the specified window to front
	FocusWindow(Window) error
	// Name returns the WM name for logging/display
	Name() string
}

type Window struct {
	ID      string
	Class   string
	Title   string
	Address string // For Hyprland

	// Screen geometry of the client area.
	X, Y, Width, Height int
}

// IsZero reports whether no window was found.
func (w Window) IsZero() bool {
	return w.ID == "" && w.Address == "" && w.Class == "" && w.Title == ""
}

// Bounds returns the window rectangle in screen coordinates.
func (w Window) Bounds() image.Rectangle {
	return image.Rect(w.X, w.Y, w.X+w.Width, w.Y+w.Height)
}

// ToScreen translates a point relative to the window into screen coordinates.
func (w Window) ToScreen(x, y int) (int, int) {
	return w.X + x, w.Y + y
}
