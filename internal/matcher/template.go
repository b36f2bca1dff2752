package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"poe-autotrade/internal/models"
)

const wildcard = '*'

const (
	// userClass captures a character name, which never contains spaces.
	userClass = `[^\s{}]+`
	// guildTag matches the optional "<TAG> " the client puts before a
	// guild member's name.
	guildTag = `(?:<[^<>{}]*> )?`
	// textClass captures any other placeholder.
	textClass = `[^{}]+`
)

var knownFields = func() map[string]bool {
	m := make(map[string]bool, len(models.Placeholders))
	for _, name := range models.Placeholders {
		m[name] = true
	}
	return m
}()

// Template is a compiled trade-mode pattern.
type Template struct {
	re *regexp.Regexp
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenWildcard
	tokenField
	tokenVar
)

type token struct {
	kind  tokenKind
	value string
}

// tokenize splits a pattern into literal text, "*" wildcards, {@name}
// placeholders and {name} variables.
func tokenize(pattern string) []token {
	var tokens []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, value: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); {
		switch {
		case pattern[i] == wildcard:
			flush()
			tokens = append(tokens, token{kind: tokenWildcard})
			i++
		case pattern[i] == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				lit.WriteString(pattern[i:])
				i = len(pattern)
				continue
			}
			inner := pattern[i+1 : i+end]
			flush()
			if strings.HasPrefix(inner, "@") {
				tokens = append(tokens, token{kind: tokenField, value: inner[1:]})
			} else {
				tokens = append(tokens, token{kind: tokenVar, value: inner})
			}
			i += end + 1
		default:
			lit.WriteByte(pattern[i])
			i++
		}
	}
	flush()
	return tokens
}

// CompileTemplate turns a trade-mode template into an anchored regular
// expression. Literal text is quoted, "*" becomes a non-greedy catch-all and
// {@name} becomes a named capture group.
func CompileTemplate(pattern string) (*Template, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("empty trade template")
	}

	tokens := tokenize(pattern)
	var expr strings.Builder
	expr.WriteString("^")

	for i, tok := range tokens {
		switch tok.kind {
		case tokenLiteral:
			expr.WriteString(regexp.QuoteMeta(tok.value))
		case tokenWildcard:
			expr.WriteString(".*?")
		case tokenField:
			if !knownFields[tok.value] {
				return nil, fmt.Errorf("unknown placeholder {@%s} in template %q", tok.value, pattern)
			}
			if tok.value == models.FieldUser {
				fmt.Fprintf(&expr, "%s(?P<%s>%s)", guildTag, tok.value, userClass)
				continue
			}
			class := textClass
			// A trailing field takes the rest of the line.
			if i != len(tokens)-1 {
				class += "?"
			}
			fmt.Fprintf(&expr, "(?P<%s>%s)", tok.value, class)
		case tokenVar:
			// Variables are only meaningful in event patterns; keep them literal here.
			expr.WriteString(regexp.QuoteMeta("{" + tok.value + "}"))
		}
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile template %q: %w", pattern, err)
	}
	return &Template{re: re}, nil
}

// Extract matches line from its start and returns the named captures.
func (t *Template) Extract(line string) (models.TradeFields, bool) {
	matches := t.re.FindStringSubmatch(line)
	if matches == nil {
		return nil, false
	}

	fields := make(models.TradeFields)
	for i, name := range t.re.SubexpNames() {
		if name == "" || i >= len(matches) {
			continue
		}
		if _, seen := fields[name]; seen && matches[i] == "" {
			continue
		}
		fields[name] = strings.TrimSpace(matches[i])
	}
	return fields, true
}

// CompileEventPattern compiles a game-event pattern such as
// "*{user} entered the area." with each {name} replaced by the literal
// value from vars. Unknown variables stay literal.
func CompileEventPattern(pattern string, vars map[string]string) (*regexp.Regexp, error) {
	var expr strings.Builder
	expr.WriteString("^")

	for _, tok := range tokenize(pattern) {
		switch tok.kind {
		case tokenLiteral:
			expr.WriteString(regexp.QuoteMeta(tok.value))
		case tokenWildcard:
			expr.WriteString(".*?")
		case tokenVar:
			if v, ok := vars[tok.value]; ok {
				expr.WriteString(regexp.QuoteMeta(v))
			} else {
				expr.WriteString(regexp.QuoteMeta("{" + tok.value + "}"))
			}
		case tokenField:
			expr.WriteString(regexp.QuoteMeta("{@" + tok.value + "}"))
		}
	}

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile event pattern %q: %w", pattern, err)
	}
	return re, nil
}
