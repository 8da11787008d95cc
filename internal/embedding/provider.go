// Package embedding fetches pretrained text embeddings from Gemini and hands
// the engine an immutable snapshot of them. Vectors are cached per model,
// dimensionality and content hash so repeated windows do not refetch them.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/DeafMist/content-radar/backend/internal/dedupe"
	"github.com/DeafMist/content-radar/backend/internal/fingerprint"
	"github.com/DeafMist/content-radar/backend/internal/processing"
)

// maxBatch is the number of texts sent in one EmbedContent call.
const maxBatch = 100

// Embedder is the part of the genai client the provider needs.
// *genai.Models satisfies it.
type Embedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

var _ Embedder = (*genai.Models)(nil)

// Provider builds fingerprint tables for batches of normalized texts.
type Provider struct {
	models Embedder
	model  string
	dim    int
	cache  *dedupe.Cache[[]float32]
	log    *slog.Logger
}

// NewGemini connects to the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, dim int, cache *dedupe.Cache[[]float32], logger *slog.Logger) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return New(client.Models, model, dim, cache, logger), nil
}

// New wraps any Embedder. A nil cache gets a private one.
func New(models Embedder, model string, dim int, cache *dedupe.Cache[[]float32], logger *slog.Logger) *Provider {
	if cache == nil {
		cache = dedupe.NewCache[[]float32](10000, 24*time.Hour)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{models: models, model: model, dim: dim, cache: cache, log: logger}
}

// Model names the embedding model.
func (p *Provider) Model() string {
	return p.model
}

// Snapshot returns a table holding a vector for every non-empty text.
// Cached vectors are reused; the rest are fetched in batches.
func (p *Provider) Snapshot(ctx context.Context, texts []string) (*fingerprint.Table, error) {
	vectors := make(map[string][]float32, len(texts))
	missing := make([]string, 0)
	for _, text := range texts {
		if processing.IsEmpty(text) {
			continue
		}
		if _, ok := vectors[text]; ok {
			continue
		}
		if v, ok := p.cache.Get(p.key(text)); ok {
			vectors[text] = v
			continue
		}
		vectors[text] = nil
		missing = append(missing, text)
	}

	for start := 0; start < len(missing); start += maxBatch {
		end := min(start+maxBatch, len(missing))
		batch := missing[start:end]
		fetched, err := p.fetch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, text := range batch {
			vectors[text] = fetched[i]
			p.cache.Put(p.key(text), fetched[i])
		}
	}

	if len(missing) > 0 {
		p.log.Debug("fetched embeddings",
			slog.String("model", p.model),
			slog.Int("fetched", len(missing)),
			slog.Int("cached", len(vectors)-len(missing)),
		)
	}
	return fingerprint.NewTable(p.model, p.dim, vectors), nil
}

func (p *Provider) fetch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dim := int32(p.dim)
	res, err := p.models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		got := 0
		if res != nil {
			got = len(res.Embeddings)
		}
		return nil, fmt.Errorf("embed content returned %d embeddings for %d texts", got, len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) != p.dim {
			return nil, fmt.Errorf("embedding dimension mismatch for text %d: expected %d", i, p.dim)
		}
		out[i] = e.Values
	}
	return out, nil
}

func (p *Provider) key(text string) string {
	return p.model + "|" + strconv.Itoa(p.dim) + "|" + processing.ContentHash(text)
}
