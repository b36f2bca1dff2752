// Package push delivers short notifications about matched log lines to
// external services. Every transport implements Channel; the Registry maps a
// config block name to the constructor that builds its channel.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"poe-autotrade/pkg/config"
	"poe-autotrade/pkg/logger"
)

const (
	testTitle   = "poe-autotrade test"
	testContent = "This is a test notification."

	httpTimeout = 10 * time.Second
)

var (
	ErrDisabled      = errors.New("channel disabled")
	ErrUnknownKind   = errors.New("unknown push channel")
	ErrPushThrottled = errors.New("push throttled")
)

// Channel is one outbound notification transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, title, content string) error
	ValidateConfig() error
	Test(ctx context.Context) error
}

// Constructor builds a channel from the application config. It reports
// enabled=false when the channel's block is switched off.
type Constructor func(cfg *config.Config, log *logger.Logger) (ch Channel, enabled bool)

// Registry maps a channel kind to its constructor.
type Registry map[string]Constructor

// DefaultRegistry returns every built-in channel kind.
func DefaultRegistry() Registry {
	return Registry{
		"wxpusher":   newWxPusherFromConfig,
		"email":      newEmailFromConfig,
		"serverchan": newServerChanFromConfig,
		"qmsgchan":   newQmsgFromConfig,
		"discord":    newDiscordFromConfig,
		"telegram":   newTelegramFromConfig,
		"desktop":    newDesktopFromConfig,
	}
}

// Kinds returns the registered kinds in sorted order.
func (r Registry) Kinds() []string {
	kinds := make([]string, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build constructs the channel for kind regardless of whether it is enabled.
func (r Registry) Build(kind string, cfg *config.Config, log *logger.Logger) (Channel, bool, error) {
	ctor, ok := r[kind]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	ch, enabled := ctor(cfg, log)
	return ch, enabled, nil
}

// Enabled builds every enabled channel whose config validates. Channels with
// invalid config are logged and left out.
func (r Registry) Enabled(cfg *config.Config, log *logger.Logger) []Channel {
	var out []Channel
	for _, kind := range r.Kinds() {
		ch, enabled := r[kind](cfg, log)
		if !enabled {
			continue
		}
		if err := ch.ValidateConfig(); err != nil {
			log.Warn("Push channel skipped", "channel", kind, "error", err)
			continue
		}
		out = append(out, ch)
	}
	return out
}

func sendTest(ctx context.Context, ch Channel) error {
	if err := ch.ValidateConfig(); err != nil {
		return err
	}
	return ch.Send(ctx, testTitle, testContent)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}
