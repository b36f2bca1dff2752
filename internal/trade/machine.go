// Package trade runs automated trade sessions: one buyer at a time is
// invited, the item is moved out of the stash and a trade is requested.
// Requests are queued and served strictly in arrival order by one worker.
package trade

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"poe-autotrade/internal/matcher"
	"poe-autotrade/internal/models"
	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const (
	defaultQueueSize   = 16
	defaultPoll        = 100 * time.Millisecond
	defaultStopTimeout = 5 * time.Second
	recentLineWindow   = 60 * time.Second
	kickTimeout        = 5 * time.Second

	statusWaiting = "Waiting for new trade request"
)

// Failure reasons recorded in history.
const (
	ReasonInviteFailed  = "failed to invite user"
	ReasonJoinTimeout   = "user join timeout"
	ReasonStashFailed   = "failed to open stash"
	ReasonTakeFailed    = "failed to take item"
	ReasonRequestFailed = "failed to request trade"
	ReasonTradeTimeout  = "trade request timeout"
	ReasonDisabled      = "auto-trade disabled"
)

var (
	ErrDisabled  = errors.New("auto-trade is disabled")
	ErrQueueFull = errors.New("trade queue is full")
)

// Actions are the in-game steps of a session.
type Actions interface {
	Invite(ctx context.Context, user string) error
	Kick(ctx context.Context, user string) error
	OpenStash(ctx context.Context) error
	TakeItem(ctx context.Context, column, row int) error
	ClosePanels(ctx context.Context) error
	RequestTrade(ctx context.Context, user string) error
}

// Recorder persists finished sessions.
type Recorder interface {
	RecordTrade(models.TradeRecord) error
}

// Reporter receives the status line and history records.
type Reporter interface {
	SetStatus(msg string)
	Record(msg string, kv ...interface{})
}

type Timing struct {
	PartyTimeout  time.Duration
	TradeTimeout  time.Duration
	StashInterval time.Duration
	TradeInterval time.Duration
	Poll          time.Duration
}

// Patterns are event patterns with "*" wildcards and a {user} variable.
type Patterns struct {
	Join      string
	Accepted  string
	Completed string
	Cancelled string
}

type Options struct {
	Timing      Timing
	Patterns    Patterns
	QueueSize   int
	StopTimeout time.Duration
}

// OptionsFromConfig maps the auto_trade config block onto Options.
func OptionsFromConfig(c config.AutoTradeConfig) Options {
	return Options{
		Timing: Timing{
			PartyTimeout:  c.PartyTimeout(),
			TradeTimeout:  c.TradeTimeout(),
			StashInterval: c.StashInterval(),
			TradeInterval: c.TradeInterval(),
			Poll:          defaultPoll,
		},
		Patterns: Patterns{
			Join:      c.JoinPattern,
			Accepted:  c.AcceptedPattern,
			Completed: c.CompletedPattern,
			Cancelled: c.CancelledPattern,
		},
		QueueSize:   defaultQueueSize,
		StopTimeout: defaultStopTimeout,
	}
}

type recentLine struct {
	text string
	at   time.Time
}

type session struct {
	id      string
	req     Request
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	join      *regexp.Regexp
	accepted  *regexp.Regexp
	completed *regexp.Regexp
	cancelled *regexp.Regexp
	joined    bool
}

type worker struct {
	queue  chan *Request
	cancel context.CancelFunc
	done   chan struct{}
}

// Snapshot is a point-in-time view for status queries.
type Snapshot struct {
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
	User    string `json:"user,omitempty"`
	Item    string `json:"item,omitempty"`
	Pending int    `json:"pending"`
}

type Machine struct {
	actions Actions
	history Recorder
	board   Reporter
	log     *logger.Logger
	opts    Options

	mu      sync.Mutex
	state   State
	session *session
	worker  *worker
	recent  []recentLine

	// sessionMu serializes session bodies even if more than one worker runs.
	sessionMu sync.Mutex
	now       func() time.Time
}

// NewMachine validates the event patterns and returns an idle, disabled
// machine. history may be nil.
func NewMachine(actions Actions, history Recorder, board Reporter, opts Options, log *logger.Logger) (*Machine, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timing.Poll <= 0 {
		opts.Timing.Poll = defaultPoll
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}

	m := &Machine{
		actions: actions,
		history: history,
		board:   board,
		log:     log,
		opts:    opts,
		now:     time.Now,
	}
	if _, err := m.newSession(Request{User: "probe"}); err != nil {
		return nil, err
	}
	return m, nil
}

// Enable starts the worker. It is a no-op when already enabled.
func (m *Machine) Enable() {
	m.mu.Lock()
	if m.worker != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		queue:  make(chan *Request, m.opts.QueueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.worker = w
	m.mu.Unlock()

	go m.run(ctx, w)
	m.log.Info("Auto-trade enabled")
	m.board.SetStatus(statusWaiting)
}

// Disable stops the worker. An active session is failed and its buyer
// kicked before the worker exits. Disable waits up to the stop timeout for
// the worker and abandons it after that.
func (m *Machine) Disable() {
	m.mu.Lock()
	w := m.worker
	m.worker = nil
	if w != nil && m.session != nil {
		m.session.cancel()
	}
	m.mu.Unlock()

	if w == nil {
		return
	}

	select {
	case w.queue <- nil:
	default:
	}
	w.cancel()

	select {
	case <-w.done:
		m.log.Info("Auto-trade disabled")
	case <-time.After(m.opts.StopTimeout):
		m.log.Warn("Trade worker did not stop in time, abandoning it", "timeout", m.opts.StopTimeout)
	}
	m.board.SetStatus("Auto-trade disabled")
}

// Enabled reports whether the worker is running.
func (m *Machine) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker != nil
}

// Run enables the machine when start is set and disables it once ctx is done.
func (m *Machine) Run(ctx context.Context, start bool) error {
	if start {
		m.Enable()
	}
	<-ctx.Done()
	m.Disable()
	return nil
}

// Submit queues req for the worker. It never blocks.
func (m *Machine) Submit(req Request) error {
	m.mu.Lock()
	w := m.worker
	m.mu.Unlock()

	if w == nil {
		return ErrDisabled
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = m.now()
	}

	select {
	case w.queue <- &req:
		m.log.Info("Trade request queued", "user", req.User, "item", req.Item, "pending", len(w.queue))
		return nil
	default:
		m.log.Warn("Trade queue full, dropping request", "user", req.User, "item", req.Item)
		return ErrQueueFull
	}
}

// State returns the current session state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the machine state for status queries.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{Enabled: m.worker != nil, State: m.state.String()}
	if m.worker != nil {
		snap.Pending = len(m.worker.queue)
	}
	if m.session != nil {
		snap.User = m.session.req.User
		snap.Item = m.session.req.Item
	}
	return snap
}

// ObserveLine feeds one log line to the machine. Lines are kept for a short
// while so a join logged while the request was still queued is not lost.
// Only lines about the current session's buyer can move the state.
func (m *Machine) ObserveLine(line models.LogLine) {
	var note string

	m.mu.Lock()
	now := m.now()
	m.recent = append(m.recent, recentLine{text: line.Text, at: now})
	m.trimRecentLocked(now)

	s := m.session
	if s != nil {
		switch {
		case s.join.MatchString(line.Text):
			if !s.joined {
				s.joined = true
				m.log.Debug("Buyer joined", "user", s.req.User)
			}
		case s.completed.MatchString(line.Text):
			if m.awaitingTradeLocked() && m.transitionLocked(StateTradeCompleted) == nil {
				note = "Trade completed by " + s.req.User
			}
		case s.cancelled.MatchString(line.Text):
			if m.awaitingTradeLocked() && m.transitionLocked(StateTradeCancelled) == nil {
				note = "Trade cancelled by " + s.req.User
			}
		case s.accepted.MatchString(line.Text):
			if m.state == StateTradeRequested && m.transitionLocked(StateTradeAccepted) == nil {
				note = "Trade accepted by " + s.req.User
			}
		}
	}
	m.mu.Unlock()

	if note != "" {
		m.board.SetStatus(note)
	}
}

func (m *Machine) awaitingTradeLocked() bool {
	return m.state == StateTradeRequested || m.state == StateTradeAccepted
}

func (m *Machine) trimRecentLocked(now time.Time) {
	cutoff := now.Add(-recentLineWindow)
	i := 0
	for i < len(m.recent) && m.recent[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.recent = append(m.recent[:0:0], m.recent[i:]...)
	}
}

func (m *Machine) run(ctx context.Context, w *worker) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.queue:
			if req == nil || ctx.Err() != nil {
				return
			}
			m.process(ctx, *req)
		}
	}
}

func (m *Machine) newSession(req Request) (*session, error) {
	vars := map[string]string{"user": req.User}
	compile := func(name, pattern string) (*regexp.Regexp, error) {
		re, err := matcher.CompileEventPattern(pattern, vars)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern: %w", name, err)
		}
		return re, nil
	}

	s := &session{req: req}
	var err error
	if s.join, err = compile("join", m.opts.Patterns.Join); err != nil {
		return nil, err
	}
	if s.accepted, err = compile("accepted", m.opts.Patterns.Accepted); err != nil {
		return nil, err
	}
	if s.completed, err = compile("completed", m.opts.Patterns.Completed); err != nil {
		return nil, err
	}
	if s.cancelled, err = compile("cancelled", m.opts.Patterns.Cancelled); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Machine) process(ctx context.Context, req Request) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, err := m.newSession(req)
	if err != nil {
		m.log.Error("Failed to start trade session", err, "user", req.User)
		return
	}
	s.id = uuid.NewString()
	s.started = m.now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	m.mu.Lock()
	m.session = s
	err = m.transitionLocked(StateInviting)
	m.mu.Unlock()
	if err != nil {
		m.log.Error("Trade session started from a busy state", err, "user", req.User)
	}

	m.log.Info("Trade session started", "session", s.id, "user", req.User, "item", req.Item,
		"column", req.Column, "row", req.Row)
	m.board.Record("Trade started", "user", req.User, "item", req.Item)

	final, reason := m.execute(s)
	m.finish(s, final, reason)
}

// execute runs the session steps and returns the terminal state it reached.
func (m *Machine) execute(s *session) (final State, reason string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Trade session panicked", fmt.Errorf("%v", r), "user", s.req.User)
			final, reason = StateTradeFailed, fmt.Sprintf("panic: %v", r)
		}
	}()

	ctx := s.ctx
	user := s.req.User
	t := m.opts.Timing

	m.board.SetStatus("Inviting " + user)
	if err := m.actions.Invite(ctx, user); err != nil {
		return m.failed(ctx, ReasonInviteFailed, err)
	}

	if !m.waitFor(ctx, t.PartyTimeout, func() bool { return m.hasJoined(s) }) {
		return m.failed(ctx, ReasonJoinTimeout, nil)
	}
	if err := m.advance(s, StateJoined, user+" joined, opening stash"); err != nil {
		return StateTradeFailed, err.Error()
	}

	if err := m.actions.OpenStash(ctx); err != nil {
		return m.failed(ctx, ReasonStashFailed, err)
	}
	if err := m.advance(s, StateStashOpened, "Stash opened"); err != nil {
		return StateTradeFailed, err.Error()
	}
	if !m.sleep(ctx, t.StashInterval) {
		return m.failed(ctx, ReasonDisabled, nil)
	}

	if s.req.HasPosition() {
		m.board.SetStatus(fmt.Sprintf("Taking item at column %d row %d", s.req.Column, s.req.Row))
		if err := m.actions.TakeItem(ctx, s.req.Column, s.req.Row); err != nil {
			return m.failed(ctx, ReasonTakeFailed, err)
		}
		if err := m.advance(s, StateItemsTaken, "Item taken"); err != nil {
			return StateTradeFailed, err.Error()
		}
	} else {
		m.log.Warn("Trade message has no stash position, skipping item pickup", "user", user)
		m.board.Record("Item pickup skipped", "user", user, "reason", "no stash position")
	}

	if !m.sleep(ctx, t.TradeInterval) {
		return m.failed(ctx, ReasonDisabled, nil)
	}
	if err := m.actions.ClosePanels(ctx); err != nil {
		return m.failed(ctx, ReasonRequestFailed, err)
	}
	if err := m.actions.RequestTrade(ctx, user); err != nil {
		return m.failed(ctx, ReasonRequestFailed, err)
	}
	if err := m.advance(s, StateTradeRequested, "Trade requested with "+user); err != nil {
		return StateTradeFailed, err.Error()
	}

	var observed State
	m.waitFor(ctx, t.TradeTimeout, func() bool {
		st := m.State()
		if st == StateTradeCompleted || st == StateTradeCancelled {
			observed = st
			return true
		}
		return false
	})

	switch observed {
	case StateTradeCompleted:
		return StateTradeCompleted, ""
	case StateTradeCancelled:
		return StateTradeCancelled, "cancelled by buyer"
	}
	return m.failed(ctx, ReasonTradeTimeout, nil)
}

func (m *Machine) failed(ctx context.Context, reason string, err error) (State, string) {
	if ctx.Err() != nil {
		reason = ReasonDisabled
	}
	if err != nil {
		m.log.Error("Trade step failed", err, "reason", reason)
	} else {
		m.log.Warn("Trade step failed", "reason", reason)
	}
	return StateTradeFailed, reason
}

func (m *Machine) hasJoined(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.joined {
		return true
	}
	for _, l := range m.recent {
		if !l.at.Before(s.req.ReceivedAt) && s.join.MatchString(l.text) {
			s.joined = true
			return true
		}
	}
	return false
}

// advance moves the session forward and reports it.
func (m *Machine) advance(s *session, to State, status string) error {
	m.mu.Lock()
	from := m.state
	err := m.transitionLocked(to)
	m.mu.Unlock()
	if err != nil {
		m.log.Error("Trade state transition rejected", err, "user", s.req.User)
		return err
	}

	m.board.SetStatus(status)
	m.board.Record("Trade "+to.String(), "user", s.req.User, "from", from.String())
	return nil
}

func (m *Machine) transitionLocked(to State) error {
	if !m.state.CanTransitionTo(to) {
		return &TransitionError{From: m.state, To: to}
	}
	m.log.Debug("Trade state", "from", m.state.String(), "to", to.String())
	m.state = to
	return nil
}

func (m *Machine) finish(s *session, final State, reason string) {
	m.mu.Lock()
	switch {
	case m.state.IsTerminal():
		// Completed or cancelled was observed after the session gave up.
		if m.state != final {
			final, reason = m.state, ""
		}
	case m.transitionLocked(final) != nil:
		m.state = final
	}
	m.mu.Unlock()

	req := s.req
	duration := m.now().Sub(s.started)
	kv := []interface{}{"user", req.User, "item", req.Item, "column", req.Column, "row", req.Row, "duration", duration}
	switch final {
	case StateTradeCompleted:
		m.board.Record("Trade completed", append(kv, "price", req.Price.String()+" "+req.Currency)...)
	case StateTradeCancelled:
		m.board.Record("Trade cancelled", append(kv, "reason", reason)...)
	default:
		m.board.Record("Trade failed", append(kv, "reason", reason)...)
		m.kick(req.User)
	}

	if m.history != nil {
		rec := models.TradeRecord{
			ID:        s.id,
			User:      req.User,
			Item:      req.Item,
			Price:     req.Price,
			Currency:  req.Currency,
			Tab:       req.Tab,
			P1Num:     req.Column,
			P2Num:     req.Row,
			Outcome:   outcomeFor(final),
			Reason:    reason,
			StartedAt: s.started,
			Duration:  duration,
		}
		if err := m.history.RecordTrade(rec); err != nil {
			m.log.Error("Failed to record trade", err, "session", s.id)
		}
	}

	m.mu.Lock()
	m.session = nil
	if err := m.transitionLocked(StateIdle); err != nil {
		m.state = StateIdle
	}
	m.mu.Unlock()

	m.log.Info("Trade session finished", "session", s.id, "user", req.User, "outcome", final.String(), "reason", reason)
	m.board.SetStatus(statusWaiting)
}

// kick removes the buyer from the party. Errors are only logged.
func (m *Machine) kick(user string) {
	if user == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), kickTimeout)
	defer cancel()
	if err := m.actions.Kick(ctx, user); err != nil {
		m.log.Warn("Failed to kick buyer", "user", user, "error", err)
	}
}

func outcomeFor(s State) models.TradeOutcome {
	switch s {
	case StateTradeCompleted:
		return models.OutcomeCompleted
	case StateTradeCancelled:
		return models.OutcomeCancelled
	default:
		return models.OutcomeFailed
	}
}

// waitFor polls cond until it holds, the timeout passes or ctx is done.
func (m *Machine) waitFor(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	deadline := m.now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if !m.now().Before(deadline) {
			return false
		}
		if !m.sleep(ctx, m.opts.Timing.Poll) {
			return false
		}
	}
}

// sleep waits d and reports false when ctx ended first.
func (m *Machine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
