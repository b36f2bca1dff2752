// Package matcher classifies log lines against the configured keyword rules.
package matcher

import (
	"fmt"
	"strings"

	"poe-autotrade/internal/models"
)

// keywordSeparator splits a message-mode pattern into required substrings.
const keywordSeparator = "|"

type rule struct {
	source   models.KeywordRule
	keywords []string
	template *Template
}

// Match is the outcome of classifying one line.
type Match struct {
	Rule   models.KeywordRule
	Fields models.TradeFields // nil for message-mode rules
}

// IsTrade reports whether the match came from a trade-mode rule.
func (m *Match) IsTrade() bool {
	return m != nil && m.Rule.Mode == models.ModeTrade
}

// Matcher evaluates rules in configuration order.
type Matcher struct {
	rules []rule
}

// New compiles the rule set. Trade templates that fail to compile are reported.
func New(rules []models.KeywordRule) (*Matcher, error) {
	m := &Matcher{rules: make([]rule, 0, len(rules))}

	for _, r := range rules {
		compiled := rule{source: r}
		switch r.Mode {
		case models.ModeMessage:
			compiled.keywords = splitKeywords(r.Pattern)
		case models.ModeTrade:
			tpl, err := CompileTemplate(r.Pattern)
			if err != nil {
				return nil, err
			}
			compiled.template = tpl
		default:
			return nil, fmt.Errorf("unknown keyword mode %q for pattern %q", r.Mode, r.Pattern)
		}
		m.rules = append(m.rules, compiled)
	}

	return m, nil
}

// Rules returns the configured rules in evaluation order.
func (m *Matcher) Rules() []models.KeywordRule {
	out := make([]models.KeywordRule, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.source
	}
	return out
}

// Match returns the first rule that matches line.
func (m *Matcher) Match(line string) (*Match, bool) {
	for _, r := range m.rules {
		switch r.source.Mode {
		case models.ModeMessage:
			if containsAll(line, r.keywords) {
				return &Match{Rule: r.source}, true
			}
		case models.ModeTrade:
			if fields, ok := r.template.Extract(line); ok {
				return &Match{Rule: r.source, Fields: fields}, true
			}
		}
	}
	return nil, false
}

// ExtractTrade tries the preferred trade template first and then every other
// trade-mode rule in order, returning the fields of the first that matches.
func (m *Matcher) ExtractTrade(line string, preferred models.KeywordRule) (models.TradeFields, models.KeywordRule, bool) {
	for _, r := range m.rules {
		if r.template != nil && r.source == preferred {
			if fields, ok := r.template.Extract(line); ok {
				return fields, r.source, true
			}
			break
		}
	}

	for _, r := range m.rules {
		if r.template == nil || r.source == preferred {
			continue
		}
		if fields, ok := r.template.Extract(line); ok {
			return fields, r.source, true
		}
	}
	return nil, models.KeywordRule{}, false
}

// MatchKeywords reports whether line contains every "|"-separated keyword of pattern.
func MatchKeywords(pattern, line string) bool {
	return containsAll(line, splitKeywords(pattern))
}

func splitKeywords(pattern string) []string {
	var keywords []string
	for _, kw := range strings.Split(pattern, keywordSeparator) {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func containsAll(line string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(line, kw) {
			return false
		}
	}
	return true
}
