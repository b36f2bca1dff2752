package game

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"poe-autotrade/internal/classifier"
	"poe-autotrade/internal/input"
	"poe-autotrade/internal/stash"
	"poe-autotrade/internal/vision"
	"poe-autotrade/internal/wm"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

type recorder struct {
	events []string
}

func (r *recorder) Move(x, y int) {
	r.events = append(r.events, fmt.Sprintf("move %d,%d", x, y))
}

func (r *recorder) Click(double bool) {
	r.events = append(r.events, fmt.Sprintf("click double=%v", double))
}

func (r *recorder) KeyDown(k string) error {
	r.events = append(r.events, "down "+k)
	return nil
}

func (r *recorder) KeyUp(k string) error {
	r.events = append(r.events, "up "+k)
	return nil
}

func (r *recorder) KeyTap(k string, mods ...string) error {
	r.events = append(r.events, strings.TrimSpace("tap "+k+" "+strings.Join(mods, "+")))
	return nil
}

func (r *recorder) TypeStr(text string, _ int) {
	r.events = append(r.events, "type "+text)
}

type fixedWindow struct{ w wm.Window }

func (f fixedWindow) Focus() (wm.Window, error) { return f.w, nil }

type blankCapture struct {
	rects []image.Rectangle
}

func (b *blankCapture) Capture(rect image.Rectangle) (gocv.Mat, error) {
	b.rects = append(b.rects, rect)
	return gocv.NewMatWithSize(rect.Dy(), rect.Dx(), gocv.MatTypeCV8UC3), nil
}

type fixedFinder struct {
	match vision.Match
	err   error
}

func (f fixedFinder) Find(gocv.Mat) (vision.Match, error) { return f.match, f.err }

type fixedGrid struct {
	res *stash.Result
	err error
}

func (f fixedGrid) Locate(gocv.Mat) (*stash.Result, error) { return f.res, f.err }

var gameWindow = wm.Window{ID: "1", Class: "steam_app_238960", X: 100, Y: 50, Width: 800, Height: 600}

func newController(t *testing.T, finder ElementFinder, grid GridLocator) (*Controller, *recorder, *blankCapture) {
	t.Helper()
	rec := &recorder{}
	capture := &blankCapture{}
	cfg := config.DefaultConfig(logger.Discard()).AutoTrade
	cfg.ActionDelayMs = 0

	in := input.NewInput(rec, fixedWindow{gameWindow}, logger.Discard())
	return NewController(in, capture, finder, grid, cfg, logger.Discard()), rec, capture
}

func TestRenderCommand(t *testing.T) {
	assert.Equal(t, "/invite Bob", RenderCommand("/invite {user}", "Bob"))
	assert.Equal(t, "/kick Bob", RenderCommand("/kick ", "Bob"))
	assert.Equal(t, "@Bob thanks, @Bob", RenderCommand("@{user} thanks, @{user}", "Bob"))
}

func TestOpenStashDoubleClicksMatch(t *testing.T) {
	finder := fixedFinder{match: vision.Match{Rect: image.Rect(200, 100, 240, 140), Score: 0.9}}
	c, rec, capture := newController(t, finder, fixedGrid{})

	require.NoError(t, c.OpenStash(context.Background()))
	assert.Equal(t, []string{"move 320,170", "click double=true"}, rec.events)
	assert.Equal(t, []image.Rectangle{image.Rect(100, 50, 900, 650)}, capture.rects)
}

func TestOpenStashNotFound(t *testing.T) {
	c, rec, _ := newController(t, fixedFinder{err: vision.ErrTemplateNotFound}, fixedGrid{})

	err := c.OpenStash(context.Background())
	assert.ErrorIs(t, err, ErrStashNotFound)
	assert.Empty(t, rec.events)
}

func TestTakeItemClicksCellCenter(t *testing.T) {
	grid := fixedGrid{res: &stash.Result{Geometry: stash.Geometry{
		OriginX: 10, OriginY: 20, CellSize: 50, Columns: 12, Rows: 12,
	}}}
	c, rec, _ := newController(t, fixedFinder{}, grid)

	require.NoError(t, c.TakeItem(context.Background(), 3, 10))
	// column 3 center: 10 + 2*50 + 25 = 135; row 10 center: 20 + 9*50 + 25 = 495
	assert.Equal(t, []string{"move 235,545", "down ctrl", "click double=false", "up ctrl"}, rec.events)
}

func TestTakeItemRejectsOutOfRangeCell(t *testing.T) {
	grid := fixedGrid{res: &stash.Result{Geometry: stash.Geometry{CellSize: 50, Columns: 12, Rows: 12}}}
	c, rec, _ := newController(t, fixedFinder{}, grid)

	assert.ErrorIs(t, c.TakeItem(context.Background(), 13, 1), stash.ErrCellOutOfRange)
	assert.Empty(t, rec.events)
}

func TestTakeItemLocatorFailure(t *testing.T) {
	c, _, _ := newController(t, fixedFinder{}, fixedGrid{err: stash.ErrNotEnoughMarkers})
	assert.ErrorIs(t, c.TakeItem(context.Background(), 1, 1), stash.ErrNotEnoughMarkers)
}

func TestActionsHonorCancelledContext(t *testing.T) {
	c, rec, _ := newController(t, fixedFinder{}, fixedGrid{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Invite(ctx, "Bob"), context.Canceled)
	assert.ErrorIs(t, c.OpenStash(ctx), context.Canceled)
	assert.ErrorIs(t, c.TakeItem(ctx, 1, 1), context.Canceled)
	assert.ErrorIs(t, c.ClosePanels(ctx), context.Canceled)
	assert.Empty(t, rec.events)
}

func TestInviteTypesCommand(t *testing.T) {
	c, rec, _ := newController(t, fixedFinder{}, fixedGrid{})

	require.NoError(t, c.Invite(context.Background(), "Bob"))
	assert.Contains(t, rec.events, "type /invite Bob")
}

func TestClosePanelsTapsCloseKey(t *testing.T) {
	c, rec, _ := newController(t, fixedFinder{}, fixedGrid{})

	require.NoError(t, c.ClosePanels(context.Background()))
	assert.Equal(t, []string{"tap esc"}, rec.events)
}

type echoDetector struct {
	classifier.NoOp
	got int
}

func (e *echoDetector) Detect(_ context.Context, png []byte) ([]classifier.Detection, error) {
	e.got = len(png)
	if len(png) == 0 {
		return nil, errors.New("empty image")
	}
	return []classifier.Detection{{Label: "divine", Confidence: 0.9}}, nil
}

func TestClassifySendsPNG(t *testing.T) {
	c, _, _ := newController(t, fixedFinder{}, fixedGrid{})
	det := &echoDetector{}

	dets, err := c.Classify(context.Background(), det)
	require.NoError(t, err)
	assert.Len(t, dets, 1)
	assert.Greater(t, det.got, 0)
}

type missingWindow struct{}

func (missingWindow) Focus() (wm.Window, error) { return wm.Window{}, wm.ErrWindowNotFound }

type failingCapture struct{ calls int }

func (f *failingCapture) Capture(rect image.Rectangle) (gocv.Mat, error) {
	f.calls++
	return gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3), errors.New("capture failed")
}

func TestScreenshotErrorsReturnZeroMat(t *testing.T) {
	cfg := config.DefaultConfig(logger.Discard()).AutoTrade

	noWindow := NewController(input.NewInput(&recorder{}, missingWindow{}, logger.Discard()),
		&blankCapture{}, fixedFinder{}, fixedGrid{}, cfg, logger.Discard())
	_, shot, err := noWindow.screenshot()
	assert.ErrorIs(t, err, wm.ErrWindowNotFound)
	assert.Equal(t, gocv.Mat{}, shot)
	assert.ErrorIs(t, noWindow.OpenStash(context.Background()), wm.ErrWindowNotFound)

	capture := &failingCapture{}
	badCapture := NewController(input.NewInput(&recorder{}, fixedWindow{gameWindow}, logger.Discard()),
		capture, fixedFinder{}, fixedGrid{}, cfg, logger.Discard())
	_, shot, err = badCapture.screenshot()
	assert.EqualError(t, err, "capture failed")
	assert.Equal(t, gocv.Mat{}, shot)

	_, err = badCapture.Recognize()
	assert.Error(t, err)
	assert.Equal(t, 2, capture.calls)
}
