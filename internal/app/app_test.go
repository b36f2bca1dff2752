package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poe-autotrade/internal/matcher"
	"poe-autotrade/internal/models"
	"poe-autotrade/internal/push"
	"poe-autotrade/internal/status"
	"poe-autotrade/internal/storage"
	"poe-autotrade/internal/trade"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const whisper = `2025/01/18 15:18:11 335363 daa6b547 [INFO Client 292] @From <GUILD> Bob: Hi, I would like to buy your Tabula Rasa Simple Robe listed for 1.5 divine in Standard (stash tab "~b/o 1 div"; position: left 3, top 10)`

type fakeTrader struct {
	enabled   bool
	submitErr error
	observed  []string
	submitted []trade.Request
}

func (f *fakeTrader) ObserveLine(l models.LogLine) { f.observed = append(f.observed, l.Text) }
func (f *fakeTrader) Enabled() bool { return f.enabled }

func (f *fakeTrader) Submit(req trade.Request) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return nil
}

type fakeNotifier struct {
	err    error
	titles []string
	bodies []string
}

func (f *fakeNotifier) Notify(_ context.Context, title, content string) error {
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, content)
	return f.err
}

type countingAlert struct{ n int }

func (c *countingAlert) PlayTradeSound() error {
	c.n++
	return nil
}

func newMonitor(t *testing.T, enabled bool) (*App, *fakeTrader, *fakeNotifier, *countingAlert) {
	t.Helper()
	cfg := config.DefaultConfig(logger.Discard())
	cfg.Currencies = []config.CurrencyAlias{{Name: "divine", Aliases: []string{"div"}}}
	m, err := matcher.New(cfg.Keywords)
	require.NoError(t, err)

	tr := &fakeTrader{enabled: enabled}
	n := &fakeNotifier{}
	al := &countingAlert{}
	a := &App{cfg: cfg, log: logger.Discard(), matcher: m, trader: tr, notifier: n, alert: al}
	return a, tr, n, al
}

func TestHandleLineQueuesTrade(t *testing.T) {
	a, tr, n, al := newMonitor(t, true)

	a.handleLine(models.LogLine{Text: whisper})

	assert.Equal(t, []string{whisper}, tr.observed)
	assert.Equal(t, 1, al.n)
	require.Len(t, tr.submitted, 1)
	req := tr.submitted[0]
	assert.Equal(t, "Bob", req.User)
	assert.Equal(t, "Tabula Rasa Simple Robe", req.Item)
	assert.True(t, decimal.RequireFromString("1.5").Equal(req.Price))
	assert.Equal(t, 3, req.Column)
	assert.Equal(t, 10, req.Row)

	require.Equal(t, []string{titleTrade}, n.titles)
	assert.Contains(t, n.bodies[0], "Bob wants to buy Tabula Rasa Simple Robe for 1.5 divine")
	assert.Contains(t, n.bodies[0], "column 3, row 10")
}

func TestHandleLineDisabledStillNotifies(t *testing.T) {
	a, tr, n, al := newMonitor(t, false)

	a.handleLine(models.LogLine{Text: whisper})

	assert.Empty(t, tr.submitted)
	assert.Equal(t, []string{titleTrade}, n.titles)
	assert.Equal(t, 1, al.n)
}

func TestHandleLineIgnoresOwnAccount(t *testing.T) {
	a, tr, _, _ := newMonitor(t, true)
	a.cfg.Accounts = []config.Account{{Name: "Bob"}}

	a.handleLine(models.LogLine{Text: whisper})
	assert.Empty(t, tr.submitted)
}

func TestHandleLineMessageRule(t *testing.T) {
	a, tr, n, al := newMonitor(t, true)

	line := "2025/01/18 15:18:11 [INFO Client 292] @From Alice: are you there?"
	a.handleLine(models.LogLine{Text: line})

	assert.Empty(t, tr.submitted)
	assert.Equal(t, 0, al.n)
	assert.Equal(t, []string{titleKeyword}, n.titles)
	assert.Equal(t, []string{line}, n.bodies)
}

func TestHandleLineNoMatch(t *testing.T) {
	a, tr, n, _ := newMonitor(t, true)

	a.handleLine(models.LogLine{Text: "2025/01/18 15:18:11 [INFO Client 292] : You have entered Hideout."})

	assert.Len(t, tr.observed, 1)
	assert.Empty(t, n.titles)
}

func TestHandleLineSurvivesErrors(t *testing.T) {
	a, tr, n, _ := newMonitor(t, true)
	n.err = push.ErrPushThrottled
	tr.submitErr = trade.ErrQueueFull

	assert.NotPanics(t, func() { a.handleLine(models.LogLine{Text: whisper}) })
	assert.Empty(t, tr.submitted)

	a.matcher = nil
	assert.NotPanics(t, func() { a.handleLine(models.LogLine{Text: whisper}) })
}

func TestBoardEntryPushesTradeOutcome(t *testing.T) {
	a, _, n, _ := newMonitor(t, true)
	board := status.New(10, logger.Discard())
	unsubscribe := board.Subscribe(a.onBoardEntry)
	defer unsubscribe()

	board.SetStatus("Trade completed")
	board.Record("Grid recognized", "grid", "12x12")
	board.Record("Trade failed", "user", "Bob", "reason", "join timeout")

	require.Equal(t, []string{titleResult}, n.titles)
	assert.Contains(t, n.bodies[0], "Trade failed")
	assert.Contains(t, n.bodies[0], "reason=join timeout")
	assert.Contains(t, n.bodies[0], "user=Bob")
}

func TestDescribeRequestWithoutPosition(t *testing.T) {
	req := trade.Request{User: "Bob", Item: "Wand"}
	assert.Equal(t, "Bob wants to buy Wand", describeRequest(req))

	req.Tab = "sale"
	assert.Equal(t, `Bob wants to buy Wand (tab "sale")`, describeRequest(req))
}

func TestStashScales(t *testing.T) {
	scales := stashScales(config.StashConfig{MinScale: 0.5, MaxScale: 1.5, ScaleSamples: 3})
	assert.InDeltaSlice(t, []float64{0.5, 1, 1.5}, scales, 1e-9)

	assert.Len(t, stashScales(config.StashConfig{MinScale: 0.2, MaxScale: 2.5, ScaleSamples: 47}), maxButtonScales)
	assert.Equal(t, []float64{1}, stashScales(config.StashConfig{}))
}

type idleActions struct{}

func (idleActions) Invite(context.Context, string) error { return errors.New("offline") }
func (idleActions) Kick(context.Context, string) error { return nil }
func (idleActions) OpenStash(context.Context) error { return nil }
func (idleActions) TakeItem(context.Context, int, int) error { return nil }
func (idleActions) ClosePanels(context.Context) error { return nil }
func (idleActions) RequestTrade(context.Context, string) error { return nil }

type stubChannel struct {
	mu   sync.Mutex
	sent int
}

func (s *stubChannel) Name() string { return "stub" }
func (s *stubChannel) ValidateConfig() error { return nil }
func (s *stubChannel) Test(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *stubChannel) Send(context.Context, string, string) error { return nil }

func newCommandApp(t *testing.T) (*App, *stubChannel) {
	t.Helper()
	log := logger.Discard()
	cfg := config.DefaultConfig(log)

	db, err := storage.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := matcher.New([]models.KeywordRule{{Mode: models.ModeMessage, Pattern: "wtb|divine"}})
	require.NoError(t, err)

	board := status.New(50, log)
	machine, err := trade.NewMachine(idleActions{}, db, board, trade.OptionsFromConfig(cfg.AutoTrade), log)
	require.NoError(t, err)
	t.Cleanup(machine.Disable)

	stub := &stubChannel{}
	registry := push.Registry{
		"stub": func(*config.Config, *logger.Logger) (push.Channel, bool) { return stub, false },
	}

	a := &App{
		cfg:        cfg,
		log:        log,
		matcher:    m,
		machine:    machine,
		trader:     machine,
		board:      board,
		history:    db,
		registry:   registry,
		dispatcher: push.NewDispatcher(nil, 0, log),
	}
	return a, stub
}

func TestCommandEnableDisable(t *testing.T) {
	a, _ := newCommandApp(t)
	ctx := context.Background()

	msg, _, err := a.cmdEnable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Auto-trade enabled", msg)
	assert.True(t, a.machine.Enabled())

	msg, _, err = a.cmdEnable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Auto-trade already enabled", msg)

	msg, _, err = a.cmdDisable(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Auto-trade disabled", msg)
	assert.False(t, a.machine.Enabled())

	_, data, err := a.cmdStatus(ctx, nil)
	require.NoError(t, err)
	reply := data.(statusReply)
	assert.False(t, reply.Trade.Enabled)
	assert.Equal(t, "Auto-trade disabled", reply.Status.Message)
	assert.Equal(t, []string{"message:wtb|divine"}, reply.Keywords)
}

func TestCommandHistory(t *testing.T) {
	a, _ := newCommandApp(t)
	ctx := context.Background()

	require.NoError(t, a.history.RecordTrade(models.TradeRecord{
		ID:        "a1",
		User:      "Bob",
		Item:      "Wand",
		Price:     decimal.RequireFromString("2"),
		Currency:  "divine",
		Outcome:   models.OutcomeCompleted,
		StartedAt: time.Now(),
		Duration:  time.Second,
	}))

	msg, data, err := a.cmdHistory(ctx, []string{"5"})
	require.NoError(t, err)
	assert.Equal(t, "1 trades", msg)
	reply := data.(historyReply)
	require.Len(t, reply.Trades, 1)
	assert.Equal(t, "Bob", reply.Trades[0].User)
	assert.True(t, decimal.RequireFromString("2").Equal(reply.Totals["divine"]))

	_, _, err = a.cmdHistory(ctx, []string{"zero"})
	assert.Error(t, err)
}

func TestCommandTestPush(t *testing.T) {
	a, stub := newCommandApp(t)
	ctx := context.Background()

	msg, _, err := a.cmdTestPush(ctx, []string{"stub"})
	require.NoError(t, err)
	assert.Equal(t, "stub test sent (channel is disabled in config)", msg)
	assert.Equal(t, 1, stub.sent)

	_, _, err = a.cmdTestPush(ctx, []string{"pigeon"})
	assert.ErrorIs(t, err, push.ErrUnknownKind)

	_, _, err = a.cmdTestPush(ctx, nil)
	assert.Error(t, err)
}
