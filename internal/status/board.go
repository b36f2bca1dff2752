// Package status keeps the latest status line and an append-only history of
// timestamped records, and fans both out to subscribers.
package status

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"poe-autotrade/pkg/logger"
)

const defaultHistorySize = 500

type Kind int

const (
	KindStatus Kind = iota
	KindHistory
)

func (k Kind) String() string {
	if k == KindStatus {
		return "status"
	}
	return "history"
}

// Entry is one status change or history record.
type Entry struct {
	Kind    Kind                   `json:"-"`
	Time    time.Time              `json:"time"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

type Handler func(Entry)

// Board is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine; a panicking handler is logged and skipped.
type Board struct {
	mu      sync.RWMutex
	status  Entry
	history []Entry
	size    int

	subs   map[uint64]Handler
	nextID atomic.Uint64
	log    *logger.Logger
	now    func() time.Time
}

func New(size int, log *logger.Logger) *Board {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &Board{
		size: size,
		subs: make(map[uint64]Handler),
		log:  log,
		now:  time.Now,
	}
}

// SetStatus replaces the current status line.
func (b *Board) SetStatus(msg string) {
	e := Entry{Kind: KindStatus, Time: b.now(), Message: msg}

	b.mu.Lock()
	b.status = e
	b.mu.Unlock()

	b.log.Info("Status", "status", msg)
	b.publish(e)
}

// Record appends a history entry. kv are alternating keys and values.
func (b *Board) Record(msg string, kv ...interface{}) {
	e := Entry{Kind: KindHistory, Time: b.now(), Message: msg}
	if len(kv) > 1 {
		e.Fields = make(map[string]interface{}, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				e.Fields[k] = kv[i+1]
			}
		}
	}

	b.mu.Lock()
	b.history = append(b.history, e)
	if over := len(b.history) - b.size; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
	b.mu.Unlock()

	b.log.Info(msg, kv...)
	b.publish(e)
}

// Status returns the current status line.
func (b *Board) Status() Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// History returns up to n most recent entries, oldest first. n <= 0 returns all.
func (b *Board) History(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if n > 0 && n < len(b.history) {
		start = len(b.history) - n
	}
	out := make([]Entry, len(b.history)-start)
	copy(out, b.history[start:])
	return out
}

// Subscribe registers h for every future entry and returns an unsubscribe func.
func (b *Board) Subscribe(h Handler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Board) publish(e Entry) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("Status subscriber panicked", fmt.Errorf("%v", r), "kind", e.Kind.String())
				}
			}()
			h(e)
		}()
	}
}
