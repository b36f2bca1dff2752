package config

import (
	"errors"
	"fmt"

	"poe-autotrade/internal/models"
)

// Validate rejects values the rest of the program cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %d", c.Interval))
	}
	if c.PushInterval < 0 {
		errs = append(errs, fmt.Errorf("push_interval must not be negative, got %d", c.PushInterval))
	}

	for i, kw := range c.Keywords {
		if kw.Mode != models.ModeMessage && kw.Mode != models.ModeTrade {
			errs = append(errs, fmt.Errorf("keywords[%d]: unknown mode %q", i, kw.Mode))
		}
		if kw.Pattern == "" {
			errs = append(errs, fmt.Errorf("keywords[%d]: empty pattern", i))
		}
	}

	at := c.AutoTrade
	for name, v := range map[string]int{
		"party_timeout_ms":  at.PartyTimeoutMs,
		"trade_timeout_ms":  at.TradeTimeoutMs,
		"stash_interval_ms": at.StashIntervalMs,
		"trade_interval_ms": at.TradeIntervalMs,
		"action_delay_ms":   at.ActionDelayMs,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("auto_trade.%s must not be negative, got %d", name, v))
		}
	}

	s := c.Stash
	if s.MinScale <= 0 || s.MaxScale < s.MinScale {
		errs = append(errs, fmt.Errorf("stash scale range [%g, %g] is invalid", s.MinScale, s.MaxScale))
	}
	if s.ScaleSamples < 1 {
		errs = append(errs, fmt.Errorf("stash.scale_samples must be at least 1, got %d", s.ScaleSamples))
	}
	for name, v := range map[string]float64{
		"detect_threshold": s.DetectThreshold,
		"pool_threshold":   s.PoolThreshold,
		"stash_threshold":  s.StashThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("stash.%s must be within [0, 1], got %g", name, v))
		}
	}

	if c.Classifier.DetectionThreshold < 0 || c.Classifier.DetectionThreshold > 1 {
		errs = append(errs, fmt.Errorf("classifier.detection_threshold must be within [0, 1], got %g",
			c.Classifier.DetectionThreshold))
	}

	return errors.Join(errs...)
}
