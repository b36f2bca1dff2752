package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poe-autotrade/internal/models"
)

const poeTradeTemplate = `*@From {@user}: Hi, I would like to buy your {@item} listed for {@price} {@currency} in * (stash tab "{@tab}"; position: {@p1} {@p1_num}, {@p2} {@p2_num})`

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		pattern string
		line    string
		want    bool
	}{
		{"a|b", "xaybz", true},
		{"a|b", "xayz", false},
		{"b|a", "xaybz", true},
		{"trade", "Trade accepted.", false},
		{"", "anything", false},
		{"||", "anything", false},
		{"@From|wtb", "@From Bob: wtb wand", true},
		{" a | b ", "xaybz", true},
		{"a | c", "xa yb", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchKeywords(tt.pattern, tt.line))
		})
	}
}

func TestTemplateExtraction(t *testing.T) {
	tpl, err := CompileTemplate("*{@user}: buy {@item} for {@price} {@currency}")
	require.NoError(t, err)

	fields, ok := tpl.Extract("2024 Foo: buy Wand for 5 chaos")
	require.True(t, ok)
	assert.Equal(t, models.TradeFields{
		"user":     "Foo",
		"item":     "Wand",
		"price":    "5",
		"currency": "chaos",
	}, fields)
}

func TestTemplateExtractionFullTradeWhisper(t *testing.T) {
	tpl, err := CompileTemplate(poeTradeTemplate)
	require.NoError(t, err)

	line := `2025/01/18 15:18:11 335363 daa6b547 [INFO Client 292] @From <GUILD> Bob: Hi, I would like to buy your Tabula Rasa Simple Robe listed for 1.5 divine in Standard (stash tab "~b/o 1 div"; position: left 3, top 10)`
	fields, ok := tpl.Extract(line)
	require.True(t, ok)

	assert.Equal(t, "Bob", fields.Get(models.FieldUser))
	assert.Equal(t, "Tabula Rasa Simple Robe", fields.Get(models.FieldItem))
	assert.Equal(t, "1.5", fields.Get(models.FieldPrice))
	assert.Equal(t, "divine", fields.Get(models.FieldCurrency))
	assert.Equal(t, "~b/o 1 div", fields.Get(models.FieldTab))
	assert.Equal(t, "left", fields.Get(models.FieldP1))
	assert.Equal(t, "3", fields.Get(models.FieldP1Num))
	assert.Equal(t, "top", fields.Get(models.FieldP2))
	assert.Equal(t, "10", fields.Get(models.FieldP2Num))
}

func TestTemplateExtractionMultiWordValues(t *testing.T) {
	tpl, err := CompileTemplate(poeTradeTemplate)
	require.NoError(t, err)

	line := `2025/01/18 15:18:11 335363 daa6b547 [INFO Client 292] @From Bob: Hi, I would like to buy your Wand listed for 3 orb of alchemy in Standard (stash tab "x"; position: left 3, top 10)`
	fields, ok := tpl.Extract(line)
	require.True(t, ok)

	assert.Equal(t, "Bob", fields.Get(models.FieldUser))
	assert.Equal(t, "3", fields.Get(models.FieldPrice))
	assert.Equal(t, "orb of alchemy", fields.Get(models.FieldCurrency))
	assert.Equal(t, "3", fields.Get(models.FieldP1Num))
	assert.Equal(t, "10", fields.Get(models.FieldP2Num))
}

func TestTemplateUserSkipsGuildTag(t *testing.T) {
	tpl, err := CompileTemplate("*@From {@user}: {@item}")
	require.NoError(t, err)

	for _, line := range []string{
		"@From <GLD> Bob: Wand",
		"@From <> Bob: Wand",
		"@From Bob: Wand",
	} {
		fields, ok := tpl.Extract(line)
		require.True(t, ok, line)
		assert.Equal(t, "Bob", fields.Get(models.FieldUser), line)
		assert.Equal(t, "Wand", fields.Get(models.FieldItem), line)
	}

	_, ok := tpl.Extract("@From Big Bob: Wand")
	assert.False(t, ok, "names never contain spaces")
}

func TestTemplateIsCaseSensitiveAndAnchored(t *testing.T) {
	tpl, err := CompileTemplate("@From {@user}: hi")
	require.NoError(t, err)

	_, ok := tpl.Extract("@from Bob: hi")
	assert.False(t, ok)

	_, ok = tpl.Extract("prefix @From Bob: hi")
	assert.False(t, ok, "template without leading wildcard must match from line start")

	fields, ok := tpl.Extract("@From Bob: hi there")
	require.True(t, ok, "trailing text is allowed")
	assert.Equal(t, "Bob", fields.Get("user"))
}

func TestTemplateEscapesLiteralParens(t *testing.T) {
	tpl, err := CompileTemplate("*(tab {@tab})")
	require.NoError(t, err)

	fields, ok := tpl.Extract("x (tab dump 1)")
	require.True(t, ok)
	assert.Equal(t, "dump 1", fields.Get("tab"))
}

func TestCompileTemplateErrors(t *testing.T) {
	_, err := CompileTemplate("")
	assert.Error(t, err)

	_, err = CompileTemplate("*{@league} sells")
	assert.ErrorContains(t, err, "unknown placeholder")
}

func TestCompileEventPattern(t *testing.T) {
	re, err := CompileEventPattern("*{user} entered the area.", map[string]string{"user": "B.o(b)"})
	require.NoError(t, err)

	assert.True(t, re.MatchString("2025/01/18 15:18:11 1 a [INFO Client 1] : B.o(b) entered the area."))
	assert.False(t, re.MatchString("2025/01/18 15:18:11 1 a [INFO Client 1] : Bxo(b) entered the area."))
	assert.False(t, re.MatchString(": Alice entered the area."))
}

func TestMatcherFirstRuleWins(t *testing.T) {
	m, err := New([]models.KeywordRule{
		{Mode: models.ModeMessage, Pattern: "@From|divine"},
		{Mode: models.ModeTrade, Pattern: "*@From {@user}: wtb {@item}"},
		{Mode: models.ModeMessage, Pattern: "@From"},
	})
	require.NoError(t, err)

	match, ok := m.Match("@From Bob: wtb Wand")
	require.True(t, ok)
	assert.True(t, match.IsTrade())
	assert.Equal(t, "Bob", match.Fields.Get("user"))

	match, ok = m.Match("@From Bob: wtb divine")
	require.True(t, ok)
	assert.False(t, match.IsTrade())
	assert.Equal(t, "@From|divine", match.Rule.Pattern)

	_, ok = m.Match("Bob entered the area.")
	assert.False(t, ok)
}

func TestMatcherExtractTradePrefersTriggeringTemplate(t *testing.T) {
	first := models.KeywordRule{Mode: models.ModeTrade, Pattern: "*@From {@user}: {@item}"}
	second := models.KeywordRule{Mode: models.ModeTrade, Pattern: "*@From {@user}: buy {@item} at {@p1_num},{@p2_num}"}
	m, err := New([]models.KeywordRule{first, second})
	require.NoError(t, err)

	line := "@From Bob: buy Wand at 3,10"

	fields, used, ok := m.ExtractTrade(line, second)
	require.True(t, ok)
	assert.Equal(t, second, used)
	assert.Equal(t, "3", fields.Get("p1_num"))

	fields, used, ok = m.ExtractTrade(line, first)
	require.True(t, ok)
	assert.Equal(t, first, used)
	assert.Equal(t, "", fields.Get("p1_num"))

	fields, used, ok = m.ExtractTrade(line, models.KeywordRule{Mode: models.ModeTrade, Pattern: "missing"})
	require.True(t, ok)
	assert.Equal(t, first, used)
	assert.Equal(t, "Bob", fields.Get("user"))
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New([]models.KeywordRule{{Mode: "regex", Pattern: "x"}})
	assert.Error(t, err)
}
