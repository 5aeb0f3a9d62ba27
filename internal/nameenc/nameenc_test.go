package nameenc_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"rashomon/internal/nameenc"
)

var keyspaceInvariant = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

func TestKeyspaceName_MatchesStoreInvariant(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		table  string
	}{
		{"short_clean", "org.wikipedia.en", "pages"},
		{"long_table", "org.wikipedia.en", "a_very_long_table_name_that_keeps_going_and_going"},
		{"long_domain", "com.example.some.very.deeply.nested.reversed.domain.name", "t"},
		{"unicode_domain", "日本語.example.com", "記事"},
		{"dots_and_underscores", "a.b_c.d__e", "x_y.z"},
		{"empty_table", "org.wikipedia.en", ""},
		{"numeric_leading", "123.example.com", "456table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nameenc.KeyspaceName(tt.domain, tt.table)
			assert.Regexp(t, keyspaceInvariant, got)
			assert.LessOrEqual(t, len(got), 48)
		})
	}
}

func TestKeyspaceName_Deterministic(t *testing.T) {
	a := nameenc.KeyspaceName("org.wikipedia.en", "pages")
	b := nameenc.KeyspaceName("org.wikipedia.en", "pages")
	assert.Equal(t, a, b)
}

func TestKeyspaceName_DistinctInputsDiffer(t *testing.T) {
	a := nameenc.KeyspaceName("org.wikipedia.en", "pages")
	b := nameenc.KeyspaceName("org.wikipedia.de", "pages")
	assert.NotEqual(t, a, b)
}

func TestMakeValidKey_CleanInputPassesThroughEscaped(t *testing.T) {
	got := nameenc.MakeValidKey("a.b_c", 32)
	assert.Equal(t, "a_b__c", got)
	assert.LessOrEqual(t, len(got), 32)
}

func TestMakeValidKey_DirtyInputFallsBackToHash(t *testing.T) {
	got := nameenc.MakeValidKey("日本語!!not-ascii", 16)
	assert.LessOrEqual(t, len(got), 16)
	assert.Regexp(t, `^[A-Za-z0-9_]*$`, got)
}

func TestMakeValidKey_Deterministic(t *testing.T) {
	a := nameenc.MakeValidKey("some/weird?input", 20)
	b := nameenc.MakeValidKey("some/weird?input", 20)
	assert.Equal(t, a, b)
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "pages", `"pages"`},
		{"with_quote", `pa"ges`, `"pa""ges"`},
		{"with_spaces", "some table", `"some table"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, nameenc.QuoteIdentifier(tt.input))
		})
	}
}
