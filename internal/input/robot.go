package input

import (
	"github.com/go-vgo/robotgo"
)

// Driver injects synthetic mouse and keyboard events at screen coordinates.
type Driver interface {
	Move(x, y int)
	Click(double bool)
	KeyDown(key string) error
	KeyUp(key string) error
	KeyTap(key string, modifiers ...string) error
	TypeStr(text string, charDelayMs int)
}

// RobotDriver is the robotgo implementation of Driver.
type RobotDriver struct{}

func (RobotDriver) Move(x, y int) {
	robotgo.Move(x, y)
}

func (RobotDriver) Click(double bool) {
	robotgo.Click("left", double)
}

func (RobotDriver) KeyDown(key string) error {
	return robotgo.KeyToggle(key, "down")
}

func (RobotDriver) KeyUp(key string) error {
	return robotgo.KeyToggle(key, "up")
}

func (RobotDriver) KeyTap(key string, modifiers ...string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}

func (RobotDriver) TypeStr(text string, charDelayMs int) {
	robotgo.TypeStrDelay(text, charDelayMs)
}
