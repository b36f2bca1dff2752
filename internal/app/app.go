// Package app wires the log monitor, the trade worker and the control socket
// together.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"poe-autotrade/internal/classifier"
	"poe-autotrade/internal/game"
	"poe-autotrade/internal/input"
	"poe-autotrade/internal/ipc"
	"poe-autotrade/internal/matcher"
	"poe-autotrade/internal/models"
	poe_log "poe-autotrade/internal/poe/log"
	"poe-autotrade/internal/poe/window"
	"poe-autotrade/internal/push"
	"poe-autotrade/internal/stash"
	"poe-autotrade/internal/status"
	"poe-autotrade/internal/storage"
	"poe-autotrade/internal/trade"
	"poe-autotrade/internal/vision"
	"poe-autotrade/internal/wm"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
	"poe-autotrade/pkg/sound"
)

const (
	historySize     = 500
	cleanupInterval = time.Hour
	healthInterval  = 30 * time.Second
	maxButtonScales = 12
)

// Notifier fans a message out to the push channels.
type Notifier interface {
	Notify(ctx context.Context, title, content string) error
}

// Alerter plays the trade alert.
type Alerter interface {
	PlayTradeSound() error
}

// Trader is the part of the trade machine the monitor feeds.
type Trader interface {
	ObserveLine(line models.LogLine)
	Enabled() bool
	Submit(req trade.Request) error
}

type App struct {
	cfg *config.Config
	log *logger.Logger

	matcher  *matcher.Matcher
	trader   Trader
	notifier Notifier
	alert    Alerter

	// Set by New; nil in tests that only drive the monitor.
	machine    *trade.Machine
	board      *status.Board
	history    *storage.DB
	detector   *window.Detector
	controller *game.Controller
	dispatcher *push.Dispatcher
	registry   push.Registry
	classifier *classifier.Handle
	health     *classifier.HTTPDetector
	server     *ipc.Server
	closers    []func() error
}

// New builds every component from cfg. Close releases what New opened.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, registry: push.DefaultRegistry()}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg, log := a.cfg, a.log

	m, err := matcher.New(cfg.Keywords)
	if err != nil {
		return fmt.Errorf("failed to compile keywords: %w", err)
	}
	a.matcher = m

	manager, err := wm.NewManager(log)
	if err != nil {
		return fmt.Errorf("failed to initialize window manager: %w", err)
	}
	a.detector = window.NewDetector(manager, cfg.WindowClasses(), cfg.WindowTitles(), log)
	in := input.NewInput(input.RobotDriver{}, a.detector, log)

	stashButton, err := vision.LoadTemplate("stash", cfg.Stash.StashTemplate, stashScales(cfg.Stash), cfg.Stash.StashThreshold)
	if err != nil {
		return fmt.Errorf("failed to load stash template: %w", err)
	}
	a.closers = append(a.closers, stashButton.Close)

	locator, err := stash.NewLocator(cfg.Stash.MarkerTemplate, locatorOptions(cfg.Stash), log)
	if err != nil {
		return fmt.Errorf("failed to load marker template: %w", err)
	}
	a.closers = append(a.closers, locator.Close)

	a.controller = game.NewController(in, vision.ScreenCapturer{}, stashButton, locator, cfg.AutoTrade, log)

	dbPath, err := storage.DefaultPath()
	if err != nil {
		return err
	}
	a.history, err = storage.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open trade history: %w", err)
	}
	a.closers = append(a.closers, a.history.Close)

	a.board = status.New(historySize, log)
	unsubscribe := a.board.Subscribe(a.onBoardEntry)
	a.closers = append(a.closers, func() error { unsubscribe(); return nil })
	a.machine, err = trade.NewMachine(a.controller, a.history, a.board, trade.OptionsFromConfig(cfg.AutoTrade), log)
	if err != nil {
		return err
	}
	a.trader = a.machine

	a.dispatcher = push.NewDispatcher(a.registry.Enabled(cfg, log), cfg.PushGap(), log)
	a.notifier = a.dispatcher

	if cfg.Sound.Enabled {
		sn, err := sound.NewSoundNotifier(cfg.Sound.File)
		if err != nil {
			log.Error("Failed to initialize sound notifier", err)
		} else {
			a.alert = sn
		}
	}

	if cfg.Classifier.Enabled {
		a.health = classifier.NewHTTPDetector(cfg.Classifier, log)
		a.classifier = classifier.NewHandle(func() (classifier.Detector, error) {
			return classifier.NewHTTPDetector(cfg.Classifier, log), nil
		}, log)
	} else {
		a.classifier = classifier.NewHandle(func() (classifier.Detector, error) {
			return classifier.NoOp{}, nil
		}, log)
	}

	a.server = ipc.NewServer(cfg.SocketPath, log)
	a.registerCommands()

	log.Info("Application initialized",
		"keywords", len(cfg.Keywords),
		"push_channels", a.dispatcher.Channels(),
		"window_manager", manager.GetWMName(),
		"auto_trade", cfg.AutoTrade.Enabled)
	return nil
}

// Run blocks until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	logPath, err := a.cfg.ResolveLogPath(a.log)
	if err != nil {
		return err
	}

	a.board.SetStatus("Waiting for new trade request")
	g, ctx := errgroup.WithContext(ctx)

	watcher := poe_log.NewLogWatcher(logPath, a.cfg.PollInterval(), a.handleLine, a.log)
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error { return a.detector.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.machine.Run(ctx, a.cfg.AutoTrade.Enabled) })
	g.Go(func() error { return a.cleanupLoop(ctx) })
	if a.health != nil {
		g.Go(func() error { return a.health.WatchHealth(ctx, healthInterval) })
	}

	a.log.Info("Monitoring log", "path", logPath)
	err = g.Wait()
	a.dispatcher.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources opened by New, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("Failed to release resource", err)
		}
	}
	a.closers = nil
}

func (a *App) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		a.cleanup()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *App) cleanup() {
	removed, err := a.history.Cleanup(a.cfg.HistoryRetention())
	if err != nil {
		a.log.Error("Failed to clean up trade history", err)
		return
	}
	if removed > 0 {
		a.log.Debug("Removed old trades", "count", removed)
	}
}

// stashScales spreads the stash button search over the locator's scale range
// with at most maxButtonScales steps.
func stashScales(c config.StashConfig) []float64 {
	n := min(c.ScaleSamples, maxButtonScales)
	if n < 2 || c.MaxScale <= c.MinScale {
		return []float64{1}
	}
	out := make([]float64, n)
	step := (c.MaxScale - c.MinScale) / float64(n-1)
	for i := range out {
		out[i] = c.MinScale + step*float64(i)
	}
	return out
}

func locatorOptions(c config.StashConfig) stash.Options {
	opts := stash.DefaultOptions()
	if c.MinScale > 0 {
		opts.MinScale = c.MinScale
	}
	if c.MaxScale > 0 {
		opts.MaxScale = c.MaxScale
	}
	if c.ScaleSamples > 0 {
		opts.ScaleSamples = c.ScaleSamples
	}
	if c.DetectThreshold > 0 {
		opts.DetectThreshold = c.DetectThreshold
	}
	if c.PoolThreshold > 0 {
		opts.Params.PoolThreshold = c.PoolThreshold
	}
	if c.AreaTolerance >= 0 {
		opts.Params.AreaTolerance = c.AreaTolerance
	}
	opts.PreviewDir = c.PreviewDir
	return opts
}
