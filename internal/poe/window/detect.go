package window

import (
	"context"
	"fmt"
	"sync"
	"time"

	"poe-autotrade/internal/wm"
	"poe-autotrade/pkg/logger"
)

const detectInterval = 2 * time.Second

// Finder is the part of the window manager the detector needs.
type Finder interface {
	FindWindow(classNames []string, titles []string) (wm.Window, error)
	FocusWindow(wm.Window) error
}

// Detector tracks the game window and its geometry
type Detector struct {
	finder        Finder
	windowClasses []string
	windowTitles  []string
	log           *logger.Logger

	mu              sync.RWMutex
	current         wm.Window
	isWindowActive  bool
	windowFoundTime time.Time
	onChange        func(active bool, w wm.Window)
}

// NewDetector creates a detector matching the given classes, then titles.
func NewDetector(finder Finder, classes, titles []string, log *logger.Logger) *Detector {
	return &Detector{
		finder:        finder,
		windowClasses: classes,
		windowTitles:  titles,
		log:           log,
	}
}

// OnChange registers a callback for window found / lost transitions.
func (d *Detector) OnChange(fn func(active bool, w wm.Window)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// Detect checks for the game window once
func (d *Detector) Detect() error {
	window, err := d.finder.FindWindow(d.windowClasses, d.windowTitles)
	if err != nil {
		return fmt.Errorf("error detecting game window: %w", err)
	}

	isActive := !window.IsZero()

	d.mu.Lock()
	changed := isActive != d.isWindowActive
	d.current = window
	if changed {
		d.isWindowActive = isActive
		if isActive {
			d.windowFoundTime = time.Now()
		}
	}
	onChange := d.onChange
	d.mu.Unlock()

	if changed {
		if isActive {
			d.log.Info("Game window found", "class", window.Class, "title", window.Title)
		} else {
			d.log.Info("Game window lost")
		}
		if onChange != nil {
			onChange(isActive, window)
		}
	}
	return nil
}

// IsActive reports whether the window was present at the last check.
func (d *Detector) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isWindowActive
}

// GetCurrentWindow returns the window seen at the last check.
func (d *Detector) GetCurrentWindow() (wm.Window, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.isWindowActive {
		return wm.Window{}, wm.ErrWindowNotFound
	}
	return d.current, nil
}

// Refresh re-detects and returns the current window. Used right before
// input so the geometry is fresh.
func (d *Detector) Refresh() (wm.Window, error) {
	if err := d.Detect(); err != nil {
		return wm.Window{}, err
	}
	return d.GetCurrentWindow()
}

// Focus brings the current window to the front.
func (d *Detector) Focus() (wm.Window, error) {
	w, err := d.Refresh()
	if err != nil {
		return wm.Window{}, err
	}
	if err := d.finder.FocusWindow(w); err != nil {
		return wm.Window{}, fmt.Errorf("failed to focus window: %w", err)
	}
	return w, nil
}

// Run polls for the window until ctx is done.
func (d *Detector) Run(ctx context.Context) error {
	if err := d.Detect(); err != nil {
		d.log.Error("Window detection error", err)
	}

	ticker := time.NewTicker(detectInterval)
	defer ticker.Stop()

	d.log.Info("Window detector started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Window detector stopped")
			return nil
		case <-ticker.C:
			if err := d.Detect(); err != nil {
				d.log.Error("Window detection error", err)
			}
		}
	}
}
