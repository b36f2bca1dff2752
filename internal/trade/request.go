package trade

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poe-autotrade/internal/models"
)

var ErrMissingUser = errors.New("trade message has no user")

// Request is one buyer whisper waiting for, or being served by, a session.
type Request struct {
	User     string
	Item     string
	Price    decimal.Decimal
	Currency string
	Tab      string
	// Column and Row are 1-based stash positions, 0 when absent.
	Column int
	Row    int

	Fields     models.TradeFields
	ReceivedAt time.Time
}

// HasPosition reports whether the whisper named a stash cell.
func (r Request) HasPosition() bool {
	return r.Column > 0 && r.Row > 0
}

// RequestFromFields builds a Request from matched template fields. Currency
// names go through normalize when it is non-nil. An unparseable price is
// left at zero.
func RequestFromFields(fields models.TradeFields, normalize func(string) string) (Request, error) {
	user := strings.TrimSpace(fields.Get(models.FieldUser))
	if user == "" {
		return Request{}, ErrMissingUser
	}

	req := Request{
		User:     user,
		Item:     fields.Get(models.FieldItem),
		Currency: fields.Get(models.FieldCurrency),
		Tab:      fields.Get(models.FieldTab),
		Column:   parsePosition(fields.Get(models.FieldP1Num)),
		Row:      parsePosition(fields.Get(models.FieldP2Num)),
		Fields:   fields,
	}
	if normalize != nil && req.Currency != "" {
		req.Currency = normalize(req.Currency)
	}
	if p, err := decimal.NewFromString(strings.TrimSpace(fields.Get(models.FieldPrice))); err == nil {
		req.Price = p
	}
	return req, nil
}

func parsePosition(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0
	}
	return n
}
