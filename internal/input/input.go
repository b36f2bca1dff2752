package input

import (
	"fmt"
	"time"

	"poe-autotrade/internal/wm"
	"poe-autotrade/pkg/logger"
)

// Focuser activates the game window and reports its geometry.
type Focuser interface {
	Focus() (wm.Window, error)
}

// Typing/timing parameters.
const (
	focusDelay       = 150 * time.Millisecond // after focusing the game window
	chatFocusDelay   = 100 * time.Millisecond // after opening chat
	clearSelectDelay = 30 * time.Millisecond  // after Ctrl+A
	clearDeleteDelay = 30 * time.Millisecond  // after Backspace
	afterTypeDelay   = 40 * time.Millisecond  // after typing the command
	sendCooldown     = 120 * time.Millisecond // between consecutive commands
	moveSettleDelay  = 50 * time.Millisecond  // between pointer move and click

	typeCharDelayMs = 10 // per-character typing delay
)

type Input struct {
	driver  Driver
	focuser Focuser
	log     *logger.Logger
	sleep   func(time.Duration)
}

func NewInput(driver Driver, focuser Focuser, log *logger.Logger) *Input {
	return &Input{
		driver:  driver,
		focuser: focuser,
		log:     log,
		sleep:   time.Sleep,
	}
}

// Activate focuses the game window and returns it.
func (i *Input) Activate() (wm.Window, error) {
	window, err := i.focuser.Focus()
	if err != nil {
		return wm.Window{}, fmt.Errorf("game window unavailable: %w", err)
	}
	// Give PoE a moment to accept input after focusing the window.
	i.sleep(focusDelay)
	return window, nil
}

// ExecutePoECommands types each command into the chat box and sends it.
func (i *Input) ExecutePoECommands(commands []string) error {
	window, err := i.Activate()
	if err != nil {
		return err
	}

	for _, cmd := range commands {
		i.log.Debug("Executing PoE command", "command", cmd, "window_class", window.Class)

		// Open chat.
		if err := i.driver.KeyTap("enter"); err != nil {
			return fmt.Errorf("failed to open chat: %w", err)
		}
		i.sleep(chatFocusDelay)

		// Clear any existing text to avoid sending stale content.
		if err := i.driver.KeyTap("a", "ctrl"); err != nil {
			return fmt.Errorf("failed to select chat text: %w", err)
		}
		i.sleep(clearSelectDelay)
		if err := i.driver.KeyTap("backspace"); err != nil {
			return fmt.Errorf("failed to clear chat text: %w", err)
		}
		i.sleep(clearDeleteDelay)

		// Type slowly: the client drops initial characters if typing is too fast.
		i.driver.TypeStr(cmd, typeCharDelayMs)
		i.sleep(afterTypeDelay)

		if err := i.driver.KeyTap("enter"); err != nil {
			return fmt.Errorf("failed to send chat command: %w", err)
		}
		i.sleep(sendCooldown)
	}
	return nil
}

// Click moves to the screen point and clicks the left button.
func (i *Input) Click(x, y int, double bool) {
	i.log.Debug("Click", "x", x, "y", y, "double", double)
	i.driver.Move(x, y)
	i.sleep(moveSettleDelay)
	i.driver.Click(double)
}

// ChordClick holds modifier, clicks at the screen point and releases the
// modifier, pausing delay between each step.
func (i *Input) ChordClick(x, y int, modifier string, delay time.Duration) error {
	i.log.Debug("Chord click", "x", x, "y", y, "modifier", modifier)

	i.driver.Move(x, y)
	i.sleep(delay)
	if err := i.driver.KeyDown(modifier); err != nil {
		return fmt.Errorf("failed to press %s: %w", modifier, err)
	}
	i.sleep(delay)
	i.driver.Click(false)
	i.sleep(delay)
	if err := i.driver.KeyUp(modifier); err != nil {
		return fmt.Errorf("failed to release %s: %w", modifier, err)
	}
	i.sleep(delay)
	return nil
}

// KeyTap presses and releases key.
func (i *Input) KeyTap(key string) error {
	i.log.Debug("Key tap", "key", key)
	if err := i.driver.KeyTap(key); err != nil {
		return fmt.Errorf("failed to tap %s: %w", key, err)
	}
	return nil
}
