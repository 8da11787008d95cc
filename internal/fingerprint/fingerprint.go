// Package fingerprint turns normalized post text into vectors for similarity
// math. A Fingerprinter is built once per analysis run and never shared
// between runs, so lexical weights of one agent's window cannot leak into
// another's.
package fingerprint

import (
	"fmt"
	"math"
	"strings"

	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// Strategy selects how fingerprints are computed.
type Strategy string

const (
	// Lexical weights word n-grams by TF-IDF over the run's own texts.
	Lexical Strategy = "lexical"
	// Embedding uses a dense vector per text.
	Embedding Strategy = "embedding"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case Lexical:
		return Lexical, nil
	case Embedding:
		return Embedding, nil
	default:
		return "", fmt.Errorf("unknown fingerprint strategy %q", raw)
	}
}

// Fingerprinter maps normalized text to a vector. Implementations are
// deterministic for a fixed snapshot.
type Fingerprinter interface {
	Fingerprint(text string) models.Fingerprint
}

var (
	_ Fingerprinter = (*Vocabulary)(nil)
	_ Fingerprinter = (*HashEmbedder)(nil)
	_ Fingerprinter = (*Table)(nil)
)

// Options configures New.
type Options struct {
	Lexical      LexicalOptions
	EmbeddingDim int
	// Embeddings, when set, is a pretrained-model snapshot used instead of
	// the built-in hashed embedding.
	Embeddings *Table
}

// DefaultOptions mirrors the defaults of the engine configuration.
func DefaultOptions() Options {
	return Options{
		Lexical:      DefaultLexicalOptions(),
		EmbeddingDim: 256,
	}
}

// New builds the Fingerprinter for one run over texts.
func New(strategy Strategy, texts []string, opts Options) (Fingerprinter, error) {
	switch strategy {
	case Lexical:
		return FitVocabulary(texts, opts.Lexical), nil
	case Embedding:
		if opts.Embeddings != nil {
			if missing := opts.Embeddings.Missing(texts); len(missing) > 0 {
				return nil, fmt.Errorf("embedding snapshot %s misses %d of %d texts", opts.Embeddings.Model(), len(missing), len(texts))
			}
			return opts.Embeddings, nil
		}
		if opts.EmbeddingDim <= 0 {
			return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.EmbeddingDim)
		}
		return &HashEmbedder{Dim: opts.EmbeddingDim}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint strategy %q", strategy)
	}
}

// Build fingerprints text, returning the empty fingerprint for the empty marker.
func Build(f Fingerprinter, text string) models.Fingerprint {
	if processing.IsEmpty(text) {
		return models.EmptyFingerprint()
	}
	return f.Fingerprint(text)
}

func normalizeL2(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range values {
		values[i] /= n
	}
}
