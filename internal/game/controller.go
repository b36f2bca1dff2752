// Package game performs trade steps in the running client: chat commands,
// opening the stash and ctrl-clicking items out of it.
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gocv.io/x/gocv"

	"poe-autotrade/internal/classifier"
	"poe-autotrade/internal/input"
	"poe-autotrade/internal/stash"
	"poe-autotrade/internal/vision"
	"poe-autotrade/internal/wm"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const userVar = "{user}"

var ErrStashNotFound = errors.New("stash not found on screen")

// ElementFinder locates a single UI element in a screenshot.
type ElementFinder interface {
	Find(img gocv.Mat) (vision.Match, error)
}

// GridLocator derives the stash grid from a screenshot.
type GridLocator interface {
	Locate(screenshot gocv.Mat) (*stash.Result, error)
}

// Controller implements trade.Actions against the game window.
type Controller struct {
	input   *input.Input
	capture vision.Capturer
	stash   ElementFinder
	grid    GridLocator
	cfg     config.AutoTradeConfig
	log     *logger.Logger
}

func NewController(in *input.Input, capture vision.Capturer, stashButton ElementFinder, grid GridLocator, cfg config.AutoTradeConfig, log *logger.Logger) *Controller {
	return &Controller{
		input:   in,
		capture: capture,
		stash:   stashButton,
		grid:    grid,
		cfg:     cfg,
		log:     log,
	}
}

// RenderCommand fills the buyer name into a chat command template. A
// template without {user} gets the name appended.
func RenderCommand(template, user string) string {
	if strings.Contains(template, userVar) {
		return strings.ReplaceAll(template, userVar, user)
	}
	return strings.TrimSpace(template) + " " + user
}

func (c *Controller) chat(ctx context.Context, template, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.input.ExecutePoECommands([]string{RenderCommand(template, user)})
}

func (c *Controller) Invite(ctx context.Context, user string) error {
	return c.chat(ctx, c.cfg.Commands.Invite, user)
}

func (c *Controller) Kick(ctx context.Context, user string) error {
	return c.chat(ctx, c.cfg.Commands.Kick, user)
}

func (c *Controller) RequestTrade(ctx context.Context, user string) error {
	return c.chat(ctx, c.cfg.Commands.Trade, user)
}

// OpenStash double-clicks the stash object found on screen.
func (c *Controller) OpenStash(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	window, shot, err := c.screenshot()
	if err != nil {
		return err
	}
	defer shot.Close()

	match, err := c.stash.Find(shot)
	if err != nil {
		if errors.Is(err, vision.ErrTemplateNotFound) {
			return fmt.Errorf("%w: %v", ErrStashNotFound, err)
		}
		return err
	}

	center := match.Center()
	x, y := window.ToScreen(center.X, center.Y)
	c.log.Debug("Opening stash", "x", x, "y", y, "score", match.Score, "scale", match.Scale)
	c.input.Click(x, y, true)
	return nil
}

// TakeItem locates the stash grid and ctrl-clicks the cell at the 1-based
// column and row.
func (c *Controller) TakeItem(ctx context.Context, column, row int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	window, shot, err := c.screenshot()
	if err != nil {
		return err
	}
	defer shot.Close()

	res, err := c.grid.Locate(shot)
	if err != nil {
		return fmt.Errorf("failed to locate stash grid: %w", err)
	}

	index, err := res.Geometry.CellIndex(column, row)
	if err != nil {
		return err
	}
	cx, cy, err := res.Geometry.CellCenter(index)
	if err != nil {
		return err
	}

	x, y := window.ToScreen(int(math.Round(cx)), int(math.Round(cy)))
	c.log.Info("Taking item", "column", column, "row", row, "cell", index, "grid", res.Geometry.String(), "x", x, "y", y)
	return c.input.ChordClick(x, y, c.cfg.ModifierKey, c.cfg.ActionDelay())
}

// ClosePanels dismisses open panels such as the stash.
func (c *Controller) ClosePanels(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.input.Activate(); err != nil {
		return err
	}
	return c.input.KeyTap(c.cfg.CloseKey)
}

// Recognize runs the grid locator on a fresh screenshot.
func (c *Controller) Recognize() (*stash.Result, error) {
	_, shot, err := c.screenshot()
	if err != nil {
		return nil, err
	}
	defer shot.Close()
	return c.grid.Locate(shot)
}

// Classify sends a fresh screenshot to the detector.
func (c *Controller) Classify(ctx context.Context, detector classifier.Detector) ([]classifier.Detection, error) {
	_, shot, err := c.screenshot()
	if err != nil {
		return nil, err
	}
	png, err := vision.EncodePNG(shot)
	shot.Close()
	if err != nil {
		return nil, err
	}
	return detector.Detect(ctx, png)
}

// screenshot captures the game window. On error the returned Mat is the zero
// value and needs no Close.
func (c *Controller) screenshot() (wm.Window, gocv.Mat, error) {
	window, err := c.input.Activate()
	if err != nil {
		return wm.Window{}, gocv.Mat{}, err
	}
	shot, err := c.capture.Capture(window.Bounds())
	if err != nil {
		shot.Close()
		return wm.Window{}, gocv.Mat{}, err
	}
	return window, shot, nil
}
