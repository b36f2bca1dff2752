package push

import (
	"context"
	"sync"
	"time"

	"poe-autotrade/pkg/logger"
)

// Dispatcher fans a notification out to every channel, at most once per gap.
type Dispatcher struct {
	channels []Channel
	gap      time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewDispatcher(channels []Channel, gap time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		gap:      gap,
		log:      log,
		now:      time.Now,
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// Notify sends title and content to every channel in the background. It
// returns ErrPushThrottled without sending when the previous push was less
// than the configured gap ago.
func (d *Dispatcher) Notify(ctx context.Context, title, content string) error {
	if len(d.channels) == 0 {
		return nil
	}

	d.mu.Lock()
	now := d.now()
	if !d.lastSent.IsZero() && now.Sub(d.lastSent) < d.gap {
		d.mu.Unlock()
		d.log.Debug("Push throttled", "title", title, "since_last", now.Sub(d.lastSent))
		return ErrPushThrottled
	}
	d.lastSent = now
	d.mu.Unlock()

	for _, ch := range d.channels {
		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()
			if err := ch.Send(ctx, title, content); err != nil {
				d.log.Error("Push failed", err, "channel", ch.Name())
				return
			}
			d.log.Debug("Push sent", "channel", ch.Name())
		}(ch)
	}
	return nil
}

// Wait blocks until every in-flight send has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
