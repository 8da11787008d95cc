package fingerprint

import (
	"math"
	"sort"
	"strings"

	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// LexicalOptions bounds the n-gram vocabulary.
type LexicalOptions struct {
	MinN        int
	MaxN        int
	MaxFeatures int
}

// DefaultLexicalOptions uses uni- to tri-grams capped at 5000 features.
func DefaultLexicalOptions() LexicalOptions {
	return LexicalOptions{MinN: 1, MaxN: 3, MaxFeatures: 5000}
}

func (o LexicalOptions) normalized() LexicalOptions {
	if o.MinN <= 0 {
		o.MinN = 1
	}
	if o.MaxN < o.MinN {
		o.MaxN = o.MinN
	}
	return o
}

// Vocabulary is the TF-IDF snapshot of one run. It is immutable once fitted.
type Vocabulary struct {
	opts  LexicalOptions
	index map[string]int
	terms []string
	idf   []float64
	docs  int
}

// FitVocabulary builds the vocabulary over the non-empty texts of a run.
// Features are ranked by document frequency, then term, and truncated to
// MaxFeatures; kept terms are indexed in lexical order.
func FitVocabulary(texts []string, opts LexicalOptions) *Vocabulary {
	opts = opts.normalized()

	df := make(map[string]int)
	docs := 0
	for _, text := range texts {
		if processing.IsEmpty(text) {
			continue
		}
		docs++
		seen := make(map[string]struct{})
		for _, gram := range ngrams(processing.Tokens(text), opts.MinN, opts.MaxN) {
			if _, ok := seen[gram]; ok {
				continue
			}
			seen[gram] = struct{}{}
			df[gram]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] == df[terms[j]] {
			return terms[i] < terms[j]
		}
		return df[terms[i]] > df[terms[j]]
	})
	if opts.MaxFeatures > 0 && len(terms) > opts.MaxFeatures {
		terms = terms[:opts.MaxFeatures]
	}
	sort.Strings(terms)

	v := &Vocabulary{
		opts:  opts,
		index: make(map[string]int, len(terms)),
		terms: terms,
		idf:   make([]float64, len(terms)),
		docs:  docs,
	}
	for i, term := range terms {
		v.index[term] = i
		v.idf[i] = math.Log(float64(1+docs)/float64(1+df[term])) + 1
	}
	return v
}

// Size is the number of kept features.
func (v *Vocabulary) Size() int {
	return len(v.terms)
}

// Documents is the number of non-empty texts the vocabulary was fitted on.
func (v *Vocabulary) Documents() int {
	return v.docs
}

// Terms returns the kept features in index order.
func (v *Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Fingerprint returns the L2-normalized TF-IDF vector of text. Terms outside
// the vocabulary are ignored.
func (v *Vocabulary) Fingerprint(text string) models.Fingerprint {
	if processing.IsEmpty(text) {
		return models.EmptyFingerprint()
	}

	counts := make(map[int]int)
	for _, gram := range ngrams(processing.Tokens(text), v.opts.MinN, v.opts.MaxN) {
		if idx, ok := v.index[gram]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return models.EmptyFingerprint()
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	for i, idx := range indices {
		values[i] = float64(counts[idx]) * v.idf[idx]
	}
	normalizeL2(values)

	return models.Fingerprint{Dim: len(v.terms), Indices: indices, Values: values}
}

func ngrams(tokens []string, minN, maxN int) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens)*(maxN-minN+1))
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}
