package trade

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poe-autotrade/internal/models"
	"poe-autotrade/internal/status"
	"poe-autotrade/pkg/logger"
)

type fakeActions struct {
	mu    sync.Mutex
	calls []string

	onInvite   func(user string)
	inviteGate chan struct{}
	takeErr    error
	takePanic  bool
}

func (f *fakeActions) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeActions) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeActions) Invite(ctx context.Context, user string) error {
	f.record("invite " + user)
	if f.inviteGate != nil {
		select {
		case <-f.inviteGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.onInvite != nil {
		f.onInvite(user)
	}
	return nil
}

func (f *fakeActions) Kick(_ context.Context, user string) error {
	f.record("kick " + user)
	return nil
}

func (f *fakeActions) OpenStash(context.Context) error {
	f.record("open stash")
	return nil
}

func (f *fakeActions) TakeItem(_ context.Context, column, row int) error {
	f.record(fmt.Sprintf("take %d,%d", column, row))
	if f.takePanic {
		panic("stash exploded")
	}
	return f.takeErr
}

func (f *fakeActions) ClosePanels(context.Context) error {
	f.record("close panels")
	return nil
}

func (f *fakeActions) RequestTrade(_ context.Context, user string) error {
	f.record("trade " + user)
	return nil
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []models.TradeRecord
}

func (h *fakeHistory) RecordTrade(r models.TradeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, r)
	return nil
}

func (h *fakeHistory) Records() []models.TradeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.TradeRecord(nil), h.recs...)
}

func testOptions(party, trade time.Duration) Options {
	return Options{
		Timing: Timing{
			PartyTimeout:  party,
			TradeTimeout:  trade,
			StashInterval: time.Millisecond,
			TradeInterval: time.Millisecond,
			Poll:          5 * time.Millisecond,
		},
		Patterns: Patterns{
			Join:      "*{user} entered the area.",
			Accepted:  "*Trade with {user} accepted.",
			Completed: "*Trade with {user} completed.",
			Cancelled: "*Trade with {user} cancelled.",
		},
		QueueSize:   4,
		StopTimeout: 2 * time.Second,
	}
}

func newTestMachine(t *testing.T, acts *fakeActions, opts Options) (*Machine, *fakeHistory, *status.Board) {
	t.Helper()
	hist := &fakeHistory{}
	board := status.New(100, logger.Discard())
	m, err := NewMachine(acts, hist, board, opts, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(m.Disable)
	return m, hist, board
}

func line(text string) models.LogLine {
	return models.LogLine{Text: "2025/01/18 15:18:12 123 [INFO Client 1] : " + text}
}

func joinOnInvite(m **Machine) func(string) {
	return func(user string) {
		(*m).ObserveLine(line(user + " entered the area."))
	}
}

func waitIdleWith(t *testing.T, m *Machine, hist *fakeHistory, n int) []models.TradeRecord {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(hist.Records()) == n && m.State() == StateIdle
	}, 3*time.Second, 2*time.Millisecond)
	return hist.Records()
}

func TestSessionCompletes(t *testing.T) {
	acts := &fakeActions{}
	m, hist, board := newTestMachine(t, acts, testOptions(2*time.Second, 2*time.Second))
	acts.onInvite = joinOnInvite(&m)

	m.Enable()
	require.NoError(t, m.Submit(Request{
		User:     "Bob",
		Item:     "Tabula Rasa Simple Robe",
		Price:    decimal.RequireFromString("1.5"),
		Currency: "divine",
		Tab:      "~b/o 1 div",
		Column:   3,
		Row:      10,
	}))

	require.Eventually(t, func() bool { return m.State() == StateTradeRequested }, 2*time.Second, time.Millisecond)

	m.ObserveLine(line("Trade with Alice completed."))
	assert.Equal(t, StateTradeRequested, m.State())

	m.ObserveLine(line("Trade with Bob accepted."))
	assert.Equal(t, StateTradeAccepted, m.State())
	m.ObserveLine(line("Trade with Bob completed."))

	recs := waitIdleWith(t, m, hist, 1)
	assert.Equal(t, []string{"invite Bob", "open stash", "take 3,10", "close panels", "trade Bob"}, acts.Calls())

	rec := recs[0]
	assert.Equal(t, models.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, "Bob", rec.User)
	assert.Equal(t, 3, rec.P1Num)
	assert.Equal(t, 10, rec.P2Num)
	assert.True(t, rec.Price.Equal(decimal.RequireFromString("1.5")))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, statusWaiting, board.Status().Message)

	var messages []string
	for _, e := range board.History(0) {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Trade started")
	assert.Contains(t, messages, "Trade Joined")

	done := findEntry(t, board, "Trade completed")
	assert.Equal(t, 3, done.Fields["column"])
	assert.Equal(t, 10, done.Fields["row"])
	assert.Equal(t, "1.5 divine", done.Fields["price"])
	assert.IsType(t, time.Duration(0), done.Fields["duration"])
}

func findEntry(t *testing.T, board *status.Board, msg string) status.Entry {
	t.Helper()
	for _, e := range board.History(0) {
		if e.Message == msg {
			return e
		}
	}
	require.Failf(t, "history entry not found", "%q", msg)
	return status.Entry{}
}

func TestJoinTimeoutKicksBuyer(t *testing.T) {
	acts := &fakeActions{}
	m, hist, board := newTestMachine(t, acts, testOptions(40*time.Millisecond, time.Second))

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Bob", Column: 1, Row: 2}))

	recs := waitIdleWith(t, m, hist, 1)
	assert.Equal(t, models.OutcomeFailed, recs[0].Outcome)
	assert.Equal(t, ReasonJoinTimeout, recs[0].Reason)
	assert.Equal(t, []string{"invite Bob", "kick Bob"}, acts.Calls())

	failed := findEntry(t, board, "Trade failed")
	assert.Equal(t, "Bob", failed.Fields["user"])
	assert.Equal(t, 1, failed.Fields["column"])
	assert.Equal(t, 2, failed.Fields["row"])
	assert.Equal(t, ReasonJoinTimeout, failed.Fields["reason"])
}

func TestJoinSeenInRecentLines(t *testing.T) {
	m, _, _ := newTestMachine(t, &fakeActions{}, testOptions(time.Second, time.Second))
	now := time.Date(2025, 1, 18, 15, 18, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.ObserveLine(line("Bob entered the area."))
	now = now.Add(time.Second)
	m.ObserveLine(line("Carol entered the area."))

	bob, err := m.newSession(Request{User: "Bob", ReceivedAt: now.Add(-2 * time.Second)})
	require.NoError(t, err)
	assert.True(t, m.hasJoined(bob))

	// Lines logged before the whisper arrived do not count.
	late, err := m.newSession(Request{User: "Bob", ReceivedAt: now})
	require.NoError(t, err)
	assert.False(t, m.hasJoined(late))

	// Lines older than the window are dropped.
	now = now.Add(2 * time.Minute)
	m.ObserveLine(line("unrelated"))
	again, err := m.newSession(Request{User: "Carol"})
	require.NoError(t, err)
	assert.False(t, m.hasJoined(again))
}

func TestSessionsRunInArrivalOrder(t *testing.T) {
	acts := &fakeActions{}
	m, hist, _ := newTestMachine(t, acts, testOptions(time.Second, 30*time.Millisecond))
	acts.onInvite = joinOnInvite(&m)

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Alice"}))
	require.NoError(t, m.Submit(Request{User: "Bob"}))

	recs := waitIdleWith(t, m, hist, 2)
	assert.Equal(t, "Alice", recs[0].User)
	assert.Equal(t, "Bob", recs[1].User)
	assert.Equal(t, ReasonTradeTimeout, recs[0].Reason)

	var invites []string
	for _, c := range acts.Calls() {
		if len(c) > 7 && c[:7] == "invite " {
			invites = append(invites, c[7:])
		}
	}
	assert.Equal(t, []string{"Alice", "Bob"}, invites)
}

func TestMissingPositionSkipsPickup(t *testing.T) {
	acts := &fakeActions{}
	m, hist, _ := newTestMachine(t, acts, testOptions(time.Second, 2*time.Second))
	acts.onInvite = joinOnInvite(&m)

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Bob", Column: 2}))

	require.Eventually(t, func() bool { return m.State() == StateTradeRequested }, 2*time.Second, time.Millisecond)
	m.ObserveLine(line("Trade with Bob cancelled."))

	recs := waitIdleWith(t, m, hist, 1)
	assert.Equal(t, models.OutcomeCancelled, recs[0].Outcome)
	assert.Equal(t, []string{"invite Bob", "open stash", "close panels", "trade Bob"}, acts.Calls())
}

func TestPanicFailsSession(t *testing.T) {
	acts := &fakeActions{takePanic: true}
	m, hist, _ := newTestMachine(t, acts, testOptions(time.Second, time.Second))
	acts.onInvite = joinOnInvite(&m)

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Bob", Column: 1, Row: 1}))

	recs := waitIdleWith(t, m, hist, 1)
	assert.Equal(t, models.OutcomeFailed, recs[0].Outcome)
	assert.Contains(t, recs[0].Reason, "stash exploded")
	assert.Equal(t, "kick Bob", acts.Calls()[len(acts.Calls())-1])

	// The worker survives and serves the next request.
	acts.takePanic = false
	acts.takeErr = fmt.Errorf("no item")
	require.NoError(t, m.Submit(Request{User: "Carol", Column: 1, Row: 1}))
	recs = waitIdleWith(t, m, hist, 2)
	assert.Equal(t, ReasonTakeFailed, recs[1].Reason)
}

func TestDisableFailsActiveSession(t *testing.T) {
	acts := &fakeActions{}
	m, hist, _ := newTestMachine(t, acts, testOptions(10*time.Second, time.Second))

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Bob"}))
	require.Eventually(t, func() bool { return m.State() == StateInviting }, time.Second, time.Millisecond)

	m.Disable()

	recs := hist.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ReasonDisabled, recs[0].Reason)
	assert.Equal(t, []string{"invite Bob", "kick Bob"}, acts.Calls())
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.Submit(Request{User: "Bob"}), ErrDisabled)
}

func TestSubmitQueueFull(t *testing.T) {
	acts := &fakeActions{inviteGate: make(chan struct{})}
	opts := testOptions(20*time.Millisecond, 20*time.Millisecond)
	opts.QueueSize = 1
	m, _, _ := newTestMachine(t, acts, opts)

	m.Enable()
	require.NoError(t, m.Submit(Request{User: "Alice"}))
	require.Eventually(t, func() bool { return len(acts.Calls()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Submit(Request{User: "Bob"}))
	assert.ErrorIs(t, m.Submit(Request{User: "Carol"}), ErrQueueFull)
	assert.Equal(t, 1, m.Snapshot().Pending)
	assert.Equal(t, "Alice", m.Snapshot().User)

	close(acts.inviteGate)
}

func TestEventPatternsQuoteLiterals(t *testing.T) {
	opts := testOptions(time.Second, time.Second)
	opts.Patterns.Join = "*{user} entered (the area."
	m, err := NewMachine(&fakeActions{}, nil, status.New(10, logger.Discard()), opts, logger.Discard())
	require.NoError(t, err)

	s, err := m.newSession(Request{User: "B.b"})
	require.NoError(t, err)
	assert.True(t, s.join.MatchString(": B.b entered (the area."))
	assert.False(t, s.join.MatchString(": Bob entered (the area."))
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateInviting, true},
		{StateIdle, StateJoined, false},
		{StateInviting, StateJoined, true},
		{StateInviting, StateTradeFailed, true},
		{StateStashOpened, StateTradeRequested, true},
		{StateTradeRequested, StateTradeAccepted, true},
		{StateTradeAccepted, StateTradeCompleted, true},
		{StateTradeCompleted, StateIdle, true},
		{StateTradeCompleted, StateTradeFailed, false},
		{StateItemsTaken, StateStashOpened, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, StateTradeCancelled.IsTerminal())
	assert.True(t, StateJoined.IsActive())
	assert.False(t, StateIdle.IsActive())
	assert.Equal(t, "Unknown(42)", State(42).String())
	assert.EqualError(t, &TransitionError{From: StateIdle, To: StateJoined},
		"invalid trade state transition from Idle to Joined")
}

func TestRequestFromFields(t *testing.T) {
	fields := models.TradeFields{
		models.FieldUser:     "Bob",
		models.FieldItem:     "Tabula Rasa",
		models.FieldPrice:    "1.5",
		models.FieldCurrency: "div",
		models.FieldP1Num:    "3",
		models.FieldP2Num:    "ten",
	}
	normalize := func(s string) string {
		if s == "div" {
			return "divine"
		}
		return s
	}

	req, err := RequestFromFields(fields, normalize)
	require.NoError(t, err)
	assert.Equal(t, "divine", req.Currency)
	assert.True(t, req.Price.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 3, req.Column)
	assert.Equal(t, 0, req.Row)
	assert.False(t, req.HasPosition())

	_, err = RequestFromFields(models.TradeFields{models.FieldItem: "x"}, nil)
	assert.ErrorIs(t, err, ErrMissingUser)
}
