package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"poe-autotrade/internal/models"
	"poe-autotrade/internal/push"
	"poe-autotrade/internal/status"
	"poe-autotrade/internal/trade"
)

const (
	titleKeyword = "PoE keyword matched"
	titleTrade   = "PoE trade request"
	titleResult  = "PoE trade finished"
)

// handleLine is the log watcher callback. A failure on one line is logged and
// never stops the monitor.
func (a *App) handleLine(line models.LogLine) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Recovered while handling log line", fmt.Errorf("%v", r), "line", line.Text)
		}
	}()

	if a.trader != nil {
		a.trader.ObserveLine(line)
	}

	match, ok := a.matcher.Match(line.Text)
	if !ok {
		return
	}
	a.log.Info("Keyword matched", "rule", match.Rule.String())

	if !match.IsTrade() {
		a.notify(titleKeyword, line.Text)
		return
	}

	a.playAlert()

	fields, rule, ok := a.matcher.ExtractTrade(line.Text, match.Rule)
	if !ok {
		a.notify(titleKeyword, line.Text)
		return
	}
	req, err := trade.RequestFromFields(fields, a.cfg.NormalizeCurrency)
	if err != nil {
		a.log.Warn("Ignoring trade message", "rule", rule.String(), "error", err.Error())
		return
	}

	a.notify(titleTrade, describeRequest(req))

	if a.cfg.IsOwnAccount(req.User) {
		a.log.Info("Ignoring trade request from own account", "user", req.User)
		return
	}
	if a.trader == nil || !a.trader.Enabled() {
		a.log.Debug("Auto-trade disabled, request not queued", "user", req.User)
		return
	}
	if err := a.trader.Submit(req); err != nil {
		a.log.Error("Failed to queue trade request", err, "user", req.User)
		return
	}
	a.log.Info("Trade request queued", "user", req.User, "item", req.Item, "column", req.Column, "row", req.Row)
}

func (a *App) notify(title, content string) {
	if a.notifier == nil {
		return
	}
	err := a.notifier.Notify(context.Background(), title, content)
	switch {
	case err == nil:
	case errors.Is(err, push.ErrPushThrottled):
		a.log.Debug("Push skipped", "reason", err.Error())
	default:
		a.log.Error("Push failed", err)
	}
}

// onBoardEntry pushes the outcome of every finished trade session.
func (a *App) onBoardEntry(e status.Entry) {
	if e.Kind != status.KindHistory {
		return
	}
	switch e.Message {
	case "Trade completed", "Trade cancelled", "Trade failed":
		a.notify(titleResult, e.String())
	}
}

func (a *App) playAlert() {
	if a.alert == nil {
		return
	}
	if err := a.alert.PlayTradeSound(); err != nil {
		a.log.Error("Failed to play trade sound", err)
	}
}

func describeRequest(r trade.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants to buy %s", r.User, r.Item)
	if !r.Price.IsZero() {
		fmt.Fprintf(&b, " for %s %s", r.Price.String(), r.Currency)
	}
	if r.Tab != "" {
		fmt.Fprintf(&b, " (tab %q", r.Tab)
		if r.HasPosition() {
			fmt.Fprintf(&b, ", column %d, row %d", r.Column, r.Row)
		}
		b.WriteString(")")
	}
	return b.String()
}
