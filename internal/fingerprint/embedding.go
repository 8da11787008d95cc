package fingerprint

import (
	"hash/fnv"
	"sort"

	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// HashEmbedder is a dense embedding that needs no model download: words and
// character trigrams are feature-hashed with a sign bit into Dim buckets.
type HashEmbedder struct {
	Dim int
}

const trigramWeight = 0.5

// Fingerprint returns the L2-normalized dense vector of text.
func (h *HashEmbedder) Fingerprint(text string) models.Fingerprint {
	if processing.IsEmpty(text) || h.Dim <= 0 {
		return models.EmptyFingerprint()
	}

	values := make([]float64, h.Dim)
	for _, word := range processing.Tokens(text) {
		h.add(values, "w:"+word, 1)
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(values, "c:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	normalizeL2(values)

	return models.Fingerprint{Dim: h.Dim, Values: values}
}

func (h *HashEmbedder) add(values []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.Dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	values[idx] += weight
}

// Table is a read-only snapshot of pretrained embedding vectors keyed by the
// content hash of the normalized text.
type Table struct {
	model   string
	dim     int
	vectors map[string][]float64
}

// NewTable copies vectors (keyed by normalized text) into a snapshot. Vectors
// whose length differs from dim are dropped.
func NewTable(model string, dim int, vectors map[string][]float32) *Table {
	t := &Table{model: model, dim: dim, vectors: make(map[string][]float64, len(vectors))}
	for text, vec := range vectors {
		if len(vec) != dim || processing.IsEmpty(text) {
			continue
		}
		values := make([]float64, dim)
		for i, v := range vec {
			values[i] = float64(v)
		}
		normalizeL2(values)
		t.vectors[processing.ContentHash(text)] = values
	}
	return t
}

// Model names the embedding model the snapshot came from.
func (t *Table) Model() string {
	return t.model
}

// Dim is the vector length.
func (t *Table) Dim() int {
	return t.dim
}

// Len is the number of stored vectors.
func (t *Table) Len() int {
	return len(t.vectors)
}

// Missing lists the non-empty texts the snapshot has no vector for, sorted.
func (t *Table) Missing(texts []string) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, text := range texts {
		if processing.IsEmpty(text) {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		if _, ok := t.vectors[processing.ContentHash(text)]; !ok {
			missing = append(missing, text)
		}
	}
	sort.Strings(missing)
	return missing
}

// Fingerprint returns the stored vector, or the empty fingerprint when the
// text is unknown.
func (t *Table) Fingerprint(text string) models.Fingerprint {
	if processing.IsEmpty(text) {
		return models.EmptyFingerprint()
	}
	values, ok := t.vectors[processing.ContentHash(text)]
	if !ok {
		return models.EmptyFingerprint()
	}
	out := make([]float64, len(values))
	copy(out, values)
	return models.Fingerprint{Dim: t.dim, Values: out}
}
