package themes

import (
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// Classifier scores normalized text against a prepared theme set.
type Classifier struct {
	set      *Set
	byLength bool
}

// NewClassifier wraps a prepared set. With byLength, strengths are divided by
// the token count of the text.
func NewClassifier(set *Set, byLength bool) *Classifier {
	return &Classifier{set: set, byLength: byLength}
}

// Strengths returns one match strength per theme, in enumeration order.
func (c *Classifier) Strengths(text string) []float64 {
	out := make([]float64, len(c.set.Themes))
	tokens := processing.Tokens(text)
	if len(tokens) == 0 {
		return out
	}
	for i, theme := range c.set.Themes {
		var strength float64
		for _, sig := range theme.Signals {
			strength += sig.Weight * float64(occurrences(tokens, sig.tokens))
		}
		if c.byLength {
			strength /= float64(len(tokens))
		}
		out[i] = strength
	}
	return out
}

// Classify returns the strongest theme. Ties go to the theme listed first;
// no match at all yields the uncategorized label.
func (c *Classifier) Classify(text string) (string, float64) {
	best, label := 0.0, models.UncategorizedTheme
	for i, strength := range c.Strengths(text) {
		if strength > best {
			best, label = strength, c.set.Themes[i].Label
		}
	}
	return label, best
}

// Assign labels every post. Confidence is the winning strength relative to
// the highest winning strength in the batch. Empty posts are uncategorized
// without being scored.
func (c *Classifier) Assign(posts []models.Post) []models.ThemeAssignment {
	out := make([]models.ThemeAssignment, len(posts))
	max := 0.0
	for i, p := range posts {
		out[i] = models.ThemeAssignment{PostID: p.ID, Theme: models.UncategorizedTheme}
		if p.Empty() {
			continue
		}
		label, strength := c.Classify(p.Normalized)
		out[i].Theme = label
		out[i].Strength = strength
		if strength > max {
			max = strength
		}
	}
	if max > 0 {
		for i := range out {
			out[i].Confidence = out[i].Strength / max
		}
	}
	return out
}

// Distribution counts assignments per label.
func Distribution(assignments []models.ThemeAssignment) map[string]int {
	dist := make(map[string]int)
	for _, a := range assignments {
		dist[a.Theme]++
	}
	return dist
}

func occurrences(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0
	}
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for k, word := range phrase {
			if tokens[i+k] != word {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}
