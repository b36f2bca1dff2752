package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// KeywordMode selects how a KeywordRule pattern is interpreted.
type KeywordMode string

const (
	// ModeMessage patterns are "|"-separated substrings that must all appear.
	ModeMessage KeywordMode = "message"
	// ModeTrade patterns are templates with "*" wildcards and {@name} placeholders.
	ModeTrade KeywordMode = "trade"
)

// KeywordRule is a user-authored matching rule from the config file.
type KeywordRule struct {
	Mode    KeywordMode `json:"mode"`
	Pattern string      `json:"pattern"`
}

func (r KeywordRule) String() string {
	return fmt.Sprintf("%s:%s", r.Mode, r.Pattern)
}

// Placeholder names recognized in trade templates.
const (
	FieldUser     = "user"
	FieldItem     = "item"
	FieldPrice    = "price"
	FieldCurrency = "currency"
	FieldMode     = "mode"
	FieldTab      = "tab"
	FieldP1       = "p1"
	FieldP1Num    = "p1_num"
	FieldP2       = "p2"
	FieldP2Num    = "p2_num"
)

// Placeholders lists every recognized placeholder in template order.
var Placeholders = []string{
	FieldUser, FieldItem, FieldPrice, FieldCurrency, FieldMode,
	FieldTab, FieldP1, FieldP1Num, FieldP2, FieldP2Num,
}

// TradeFields maps placeholder name to the text captured from a log line.
type TradeFields map[string]string

// Get returns the captured value or "" when absent.
func (f TradeFields) Get(name string) string {
	if f == nil {
		return ""
	}
	return f[name]
}

// LogLine is a decoded line handed out by the log source.
type LogLine struct {
	Text      string
	Timestamp time.Time // zero when the line has no parseable timestamp
}

// TradeOutcome is the terminal state a trade session ended in.
type TradeOutcome string

const (
	OutcomeCompleted TradeOutcome = "completed"
	OutcomeCancelled TradeOutcome = "cancelled"
	OutcomeFailed    TradeOutcome = "failed"
)

// TradeRecord is one finished trade session as kept in history.
type TradeRecord struct {
	ID        string          `json:"id"`
	User      string          `json:"user"`
	Item      string          `json:"item"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Tab       string          `json:"tab"`
	P1Num     int             `json:"p1_num"` // 0 when the whisper had no position
	P2Num     int             `json:"p2_num"`
	Outcome   TradeOutcome    `json:"outcome"`
	Reason    string          `json:"reason,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}
