package push

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

type notificationTool struct {
	name         string
	buildCommand func(ctx context.Context, tool, title, message string) *exec.Cmd
}

var notificationTools = []notificationTool{
	{
		name: "dunstify",
		buildCommand: func(ctx context.Context, tool, title, message string) *exec.Cmd {
			return exec.CommandContext(ctx, tool, "-u", "critical", "-t", "5000", title, message)
		},
	},
	{
		name: "notify-send",
		buildCommand: func(ctx context.Context, tool, title, message string) *exec.Cmd {
			return exec.CommandContext(ctx, tool, "-u", "critical", title, message)
		},
	},
	{
		name: "zenity",
		buildCommand: func(ctx context.Context, tool, title, message string) *exec.Cmd {
			return exec.CommandContext(ctx, tool, "--notification", "--text", title+": "+message)
		},
	},
}

// Desktop shows a local desktop notification through the first available
// notification tool, or through a configured command that receives the
// title and message as its two arguments.
type Desktop struct {
	command  string
	log      *logger.Logger
	lookPath func(string) (string, error)
	run      func(*exec.Cmd) error
}

func NewDesktop(cfg config.DesktopConfig, log *logger.Logger) *Desktop {
	return &Desktop{
		command:  cfg.Command,
		log:      log,
		lookPath: exec.LookPath,
		run:      (*exec.Cmd).Run,
	}
}

func newDesktopFromConfig(cfg *config.Config, log *logger.Logger) (Channel, bool) {
	return NewDesktop(cfg.Desktop, log), cfg.Desktop.Enabled
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) ValidateConfig() error {
	if d.command != "" {
		return nil
	}
	for _, tool := range notificationTools {
		if _, err := d.lookPath(tool.name); err == nil {
			return nil
		}
	}
	return errors.New("desktop: no notification tool found")
}

func (d *Desktop) Test(ctx context.Context) error { return sendTest(ctx, d) }

func (d *Desktop) Send(ctx context.Context, title, content string) error {
	if d.command != "" {
		cmd := exec.CommandContext(ctx, "sh", "-c", d.command+` "$1" "$2"`, "sh", title, content)
		if err := d.run(cmd); err != nil {
			return fmt.Errorf("desktop: command %q failed: %w", d.command, err)
		}
		return nil
	}

	for _, tool := range notificationTools {
		path, err := d.lookPath(tool.name)
		if err != nil {
			continue
		}
		if err := d.run(tool.buildCommand(ctx, path, title, content)); err != nil {
			d.log.Warn("Notification tool failed", "tool", tool.name, "error", err)
			continue
		}
		d.log.Debug("Notification sent", "tool", tool.name)
		return nil
	}
	return errors.New("desktop: no notification tool succeeded")
}
