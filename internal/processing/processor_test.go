package processing_test

import (
	"testing"
	"time"

	"github.com/DeafMist/content-radar/backend/internal/processing"
	"github.com/stretchr/testify/require"
)

var normalizeCases = []struct {
	name  string
	input string
	want  string
}{
	{name: "empty", input: "", want: ""},
	{name: "whitespace only", input: " \t\n ", want: ""},
	{name: "punctuation only", input: "!!! ... ???", want: ""},
	{name: "casing and punctuation", input: "Buy now! Limited offer!!", want: "buy now limited offer"},
	{name: "upper case", input: "BUY NOW LIMITED OFFER", want: "buy now limited offer"},
	{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
	{name: "urls", input: "Check https://x.co/a?b=1 NOW", want: "check now"},
	{name: "www url", input: "www.bingo365.com/promo Register", want: "register"},
	{name: "internal hyphen and apostrophe", input: "Don't miss our rock-n-roll sale -- today!", want: "don't miss our rock-n-roll sale today"},
	{name: "edge hyphen and apostrophe", input: "-leading hyphen' 'quoted'", want: "leading hyphen quoted"},
	{name: "typographic apostrophe", input: "Tom’s Café", want: "tom's café"},
	{name: "emoji", input: "🎰🎰 JACKPOT 🎉 win", want: "jackpot win"},
	{name: "emoji joined to word", input: "bonus🔥🔥today", want: "bonus today"},
	{name: "entities", input: "deals &amp; steals &lt;3", want: "deals steals 3"},
	{name: "full width", input: "ＦＵＬＬ　ＷＩＤＴＨ", want: "full width"},
	{name: "numbers", input: "Sayang ang 8,888 Sign Up Bonus", want: "sayang ang 8 888 sign up bonus"},
}

func TestNormalize(t *testing.T) {
	for _, tt := range normalizeCases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.Normalize(tt.input))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	extra := []string{
		"&amp;amp; nested entities",
		"İstanbul KELVIN K",
		"a-'b c'-d e--f",
		"½ price ²",
		"नमस्ते दुनिया",
		"zero​width space",
	}
	inputs := make([]string, 0, len(normalizeCases)+len(extra))
	for _, tt := range normalizeCases {
		inputs = append(inputs, tt.input)
	}
	inputs = append(inputs, extra...)

	for _, in := range inputs {
		once := processing.Normalize(in)
		require.Equal(t, once, processing.Normalize(once), "input %q", in)
	}
}

func TestIsEmpty(t *testing.T) {
	require.True(t, processing.IsEmpty(processing.Normalize("   ")))
	require.True(t, processing.IsEmpty(processing.Normalize("🎉🎉")))
	require.False(t, processing.IsEmpty(processing.Normalize("hi")))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "punctuation", input: "Hello!!!   mundo", want: "Hello mundo"},
		{name: "collapse whitespace", input: "foo\n\nbar\t baz", want: "foo bar baz"},
		{name: "remove urls", input: "Check https://example.com for info", want: "Check for info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.CleanText(tt.input); got != tt.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "Bonus bonus jackpot jackpot jackpot sa ang slots and deposit"
	got := processing.ExtractKeywords(text, 3, 3)
	want := []string{"jackpot", "bonus", "deposit"}
	require.Equal(t, want, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
}

func TestExtractKeywordsIgnoresURLWords(t *testing.T) {
	text := "Promo cashback cashback https://example.com/promo-deals weekly"
	got := processing.ExtractKeywords(text, 3, 3)
	require.ElementsMatch(t, []string{"cashback", "promo", "weekly"}, got)
}

func TestTopKeywords(t *testing.T) {
	got := processing.TopKeywords([]string{"jackpot jackpot win", "jackpot bonus", "bonus"}, 2, 3)
	require.Equal(t, []string{"bonus", "jackpot"}, got)
}

func TestContentHash(t *testing.T) {
	require.Empty(t, processing.ContentHash(""))
	a := processing.ContentHash(processing.Normalize("Buy now! Limited offer!!"))
	b := processing.ContentHash(processing.Normalize("BUY NOW LIMITED OFFER"))
	require.Len(t, a, 64)
	require.Equal(t, a, b)
}

func TestBuildPostID(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	id1 := processing.BuildPostID("mika", "text", ts)
	id2 := processing.BuildPostID("mika", "text", ts)
	require.NotEmpty(t, id1)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, processing.BuildPostID("sheena", "text", ts))
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{name: "no urls", input: "Hello world", want: nil},
		{name: "single url", input: "Check https://example.com for more", want: []string{"https://example.com"}},
		{name: "multiple urls", input: "Go to https://example.com or http://test.org now", want: []string{"https://example.com", "http://test.org"}},
		{name: "duplicate urls", input: "https://example.com and https://example.com again", want: []string{"https://example.com"}},
		{name: "www url", input: "Visit www.example.com/path today", want: []string{"www.example.com/path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.ExtractURLs(tt.input)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRemoveURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "no urls", input: "Hello world", want: "Hello world"},
		{name: "single url", input: "Check https://example.com for more", want: "Check   for more"},
		{name: "multiple urls", input: "Go https://example.com and http://test.org now", want: "Go   and   now"},
		{name: "url only", input: "https://example.com", want: " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := processing.RemoveURLs(tt.input)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxRunes int
		want     string
	}{
		{name: "empty", text: "", maxRunes: 10, want: ""},
		{name: "short", text: "Register na!", maxRunes: 100, want: "Register na!"},
		{name: "truncated", text: "Sayang ang bonus kung palalampasin", maxRunes: 10, want: "Sayang ang..."},
		{name: "url dropped", text: "Promo https://example.com  today", maxRunes: 100, want: "Promo today"},
		{name: "unlimited", text: "Weekly cashback up to 8%", maxRunes: 0, want: "Weekly cashback up to 8%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, processing.Snippet(tt.text, tt.maxRunes))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	ts := processing.ParseTimestamp("2024-02-03T04:05:06Z")
	require.False(t, ts.IsZero())
	require.Equal(t, time.UTC, ts.Location())
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), ts)

	legacy := processing.ParseTimestamp("2024-02-03 04:05:06")
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), legacy)

	day := processing.ParseTimestamp("2024-02-03")
	require.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), day)

	require.True(t, processing.ParseTimestamp("invalid").IsZero())
	require.True(t, processing.ParseTimestamp("  ").IsZero())
}
