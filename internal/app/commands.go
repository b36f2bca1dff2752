package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"poe-autotrade/internal/classifier"
	"poe-autotrade/internal/models"
	"poe-autotrade/internal/status"
	"poe-autotrade/internal/trade"
)

const defaultHistoryLimit = 20

type statusReply struct {
	Trade    trade.Snapshot `json:"trade"`
	Status   status.Entry   `json:"status"`
	Push     []string       `json:"push_channels"`
	Keywords []string       `json:"keywords"`
}

type historyReply struct {
	Events []status.Entry             `json:"events"`
	Trades []models.TradeRecord       `json:"trades"`
	Totals map[string]decimal.Decimal `json:"totals"`
}

type classifyReply struct {
	Detections []classifier.Detection  `json:"detections"`
	Summary    []classifier.LabelCount `json:"summary"`
}

func (a *App) registerCommands() {
	a.server.Handle("status", a.cmdStatus)
	a.server.Handle("history", a.cmdHistory)
	a.server.Handle("enable", a.cmdEnable)
	a.server.Handle("disable", a.cmdDisable)
	a.server.Handle("recognize", a.cmdRecognize)
	a.server.Handle("classify", a.cmdClassify)
	a.server.Handle("test-push", a.cmdTestPush)
}

func (a *App) cmdStatus(context.Context, []string) (string, interface{}, error) {
	snap := a.machine.Snapshot()
	current := a.board.Status()
	reply := statusReply{Trade: snap, Status: current, Push: a.dispatcher.Channels()}
	for _, r := range a.matcher.Rules() {
		reply.Keywords = append(reply.Keywords, r.String())
	}
	return current.Message, reply, nil
}

// cmdHistory takes an optional entry limit.
func (a *App) cmdHistory(_ context.Context, args []string) (string, interface{}, error) {
	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "", nil, fmt.Errorf("invalid history limit %q", args[0])
		}
		limit = n
	}

	trades, err := a.history.Recent(limit)
	if err != nil {
		return "", nil, err
	}
	totals, err := a.history.Totals()
	if err != nil {
		return "", nil, err
	}

	reply := historyReply{Events: a.board.History(limit), Trades: trades, Totals: totals}
	return fmt.Sprintf("%d trades", len(trades)), reply, nil
}

func (a *App) cmdEnable(context.Context, []string) (string, interface{}, error) {
	if a.machine.Enabled() {
		return "Auto-trade already enabled", nil, nil
	}
	a.machine.Enable()
	return "Auto-trade enabled", nil, nil
}

func (a *App) cmdDisable(context.Context, []string) (string, interface{}, error) {
	if !a.machine.Enabled() {
		return "Auto-trade already disabled", nil, nil
	}
	a.machine.Disable()
	return "Auto-trade disabled", nil, nil
}

func (a *App) cmdRecognize(context.Context, []string) (string, interface{}, error) {
	res, err := a.controller.Recognize()
	if err != nil {
		a.board.Record("Grid recognition failed", "reason", err.Error())
		return "", nil, err
	}
	a.board.Record("Grid recognized", "grid", res.Geometry.String(), "candidates", res.Candidates)
	return res.Geometry.String(), res.Geometry, nil
}

func (a *App) cmdClassify(ctx context.Context, _ []string) (string, interface{}, error) {
	det, release, err := a.classifier.Acquire()
	if err != nil {
		return "", nil, err
	}
	defer release()

	dets, err := a.controller.Classify(ctx, det)
	if err != nil {
		return "", nil, err
	}
	reply := classifyReply{Detections: dets, Summary: classifier.Summarize(dets, a.cfg.NormalizeCurrency)}
	return fmt.Sprintf("%d objects", len(dets)), reply, nil
}

// cmdTestPush sends a test message through one channel kind, enabled or not.
func (a *App) cmdTestPush(ctx context.Context, args []string) (string, interface{}, error) {
	if len(args) != 1 {
		return "", nil, fmt.Errorf("usage: test-push <kind>, kinds: %v", a.registry.Kinds())
	}

	ch, enabled, err := a.registry.Build(args[0], a.cfg, a.log)
	if err != nil {
		return "", nil, err
	}
	if err := ch.Test(ctx); err != nil {
		return "", nil, fmt.Errorf("%s test failed: %w", ch.Name(), err)
	}
	msg := ch.Name() + " test sent"
	if !enabled {
		msg += " (channel is disabled in config)"
	}
	return msg, nil, nil
}
