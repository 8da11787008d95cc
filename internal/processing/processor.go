package processing

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// EmptyMarker is the normalized form of text with nothing comparable in it.
const EmptyMarker = ""

var urlRegex = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var quoteFolder = strings.NewReplacer(
	"’", "'", "‘", "'", "ʼ", "'", "′", "'",
	"‐", "-", "‑", "-",
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "and": {}, "or": {},
	"of": {}, "on": {}, "is": {}, "are": {}, "with": {}, "now": {}, "this": {}, "that": {},
	"ang": {}, "ng": {}, "sa": {}, "na": {}, "mga": {}, "ko": {}, "mo": {}, "at": {},
	"ay": {}, "para": {}, "kung": {}, "pa": {}, "lang": {}, "din": {}, "rin": {},
}

// Normalize canonicalizes raw post text for comparison: entities decoded,
// NFKC folded, lower-cased, URLs and symbol runs replaced by a space,
// hyphens and apostrophes kept only inside words, whitespace squeezed.
// Text without letters or digits normalizes to EmptyMarker.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return EmptyMarker
	}
	text := html.UnescapeString(raw)
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)
	text = RemoveURLs(text)
	text = quoteFolder.Replace(text)
	text = keepWordRunes(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// IsEmpty reports whether normalized text is the empty marker.
func IsEmpty(normalized string) bool {
	return normalized == EmptyMarker
}

func keepWordRunes(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	afterWord := false
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			afterWord = true
		case unicode.In(r, unicode.Mn, unicode.Mc) && afterWord:
			b.WriteRune(r)
		case (r == '-' || r == '\'') && afterWord && i+1 < len(runes) && isLetterOrNumber(runes[i+1]):
			b.WriteRune(r)
			afterWord = false
		default:
			b.WriteByte(' ')
			afterWord = false
		}
	}
	return b.String()
}

func isLetterOrNumber(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Tokens splits normalized text into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// ExtractURLs extracts all HTTP(S) and www. URLs from the input text.
func ExtractURLs(input string) []string {
	if input == "" {
		return nil
	}
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	// Remove duplicates while preserving order
	seen := make(map[string]struct{})
	var urls []string
	for _, url := range matches {
		if _, ok := seen[url]; !ok {
			seen[url] = struct{}{}
			urls = append(urls, url)
		}
	}
	return urls
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
// Unlike Normalize it keeps the original casing.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	decoded = strings.TrimSpace(decoded)
	return decoded
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	return topWords(freq, limit)
}

// TopKeywords merges keyword frequencies over many texts.
func TopKeywords(texts []string, limit, minLen int) []string {
	freq := make(map[string]int)
	for _, text := range texts {
		for _, word := range ExtractKeywords(text, 0, minLen) {
			freq[word]++
		}
	}
	return topWords(freq, limit)
}

func topWords(freq map[string]int, limit int) []string {
	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// ContentHash fingerprints normalized text for exact duplicate detection.
// The empty marker hashes to the empty string.
func ContentHash(normalized string) string {
	if IsEmpty(normalized) {
		return ""
	}
	s := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(s[:])
}

// BuildPostID hashes the most stable fields to form deterministic IDs.
func BuildPostID(agentID, text string, ts time.Time) string {
	s := sha1.Sum([]byte(agentID + "|" + text + "|" + ts.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(s[:])
}

// Snippet shortens text for previews, cutting at maxRunes and appending an
// ellipsis when truncated. URLs are dropped and whitespace squeezed.
func Snippet(text string, maxRunes int) string {
	if text == "" {
		return ""
	}
	clean := whitespace.ReplaceAllString(RemoveURLs(text), " ")
	clean = strings.TrimSpace(clean)

	runes := []rune(clean)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return clean
	}
	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}

var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 and the legacy sheet formats. The zero time
// is returned when nothing matches.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, f := range timestampFormats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
