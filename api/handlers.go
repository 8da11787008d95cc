package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/content-radar/backend/internal/config"
	"github.com/DeafMist/content-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/content-radar/backend/internal/engine"
	"github.com/DeafMist/content-radar/backend/internal/fingerprint"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
	"github.com/DeafMist/content-radar/backend/internal/report"
	"github.com/DeafMist/content-radar/backend/internal/themes"
)

type postStore interface {
	Health(ctx context.Context) error
	SearchPosts(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	FetchAgentWindow(ctx context.Context, agentID string, start, end time.Time, limit int) ([]models.PostDocument, error)
	ListAgents(ctx context.Context, start, end time.Time) ([]string, error)
}

// embeddingSource fetches pretrained vectors. Without one the embedding
// strategy falls back to hashed embeddings.
type embeddingSource interface {
	Snapshot(ctx context.Context, texts []string) (*fingerprint.Table, error)
}

type server struct {
	log        *slog.Logger
	cfg        *config.API
	store      postStore
	embeddings embeddingSource
	base       engine.Config
}

type errorResponse struct {
	Error    string `json:"error"`
	RecordID string `json:"record_id,omitempty"`
	Field    string `json:"field,omitempty"`
}

type leaderboardResponse struct {
	Date    string                    `json:"date"`
	Entries []models.LeaderboardEntry `json:"entries"`
	Team    models.TeamSummary        `json:"team"`
	Daily   []models.FreshnessRecord  `json:"daily"`
}

type analyzeRequest struct {
	Posts  []engine.PostRecord `json:"posts"`
	Config json.RawMessage     `json:"config,omitempty"`
}

func newServer(log *slog.Logger, cfg *config.API, store postStore, embeddings embeddingSource) (*server, error) {
	base, err := engineConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return &server{log: log, cfg: cfg, store: store, embeddings: embeddings, base: base}, nil
}

// engineConfig turns environment settings into the per-request base config.
func engineConfig(c config.Engine) (engine.Config, error) {
	ec := engine.DefaultConfig()
	ec.DuplicateThreshold = c.DuplicateThreshold
	ec.NearDuplicateThreshold = c.NearDuplicateThreshold
	ec.WindowDays = c.WindowDays
	ec.Strategy = fingerprint.Strategy(c.Strategy)
	ec.Lexical = fingerprint.LexicalOptions{MinN: 1, MaxN: c.NgramMax, MaxFeatures: c.MaxFeatures}
	ec.EmbeddingDim = c.EmbeddingDim
	ec.Location = c.Location()
	ec.AlertLimit = c.AlertLimit

	if c.ThemesFile != "" {
		set, err := themes.LoadFile(c.ThemesFile)
		if err != nil {
			return engine.Config{}, fmt.Errorf("ENGINE_THEMES_FILE: %w", err)
		}
		ec.Themes = set
	}

	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/posts", s.handleSearch)
	r.Get("/agents/{agentID}/summary", s.handleAgentSummary)
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Post("/analyze", s.handleAnalyze)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:       strings.TrimSpace(q.Get("q")),
		Keywords:    parseCSV(q.Get("keywords")),
		AgentID:     strings.TrimSpace(q.Get("agent")),
		ContentType: strings.TrimSpace(q.Get("content_type")),
		From:        clampInt(q.Get("from"), 0, 10_000),
		Size:        clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Sort:        strings.TrimSpace(q.Get("sort")),
		Start:       parseTime(q.Get("start")),
		End:         parseTime(q.Get("end")),
	}

	result, err := s.store.SearchPosts(ctx, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAgentSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	run := runID(w)

	agentID := chi.URLParam(r, "agentID")
	cfg, day, ok := s.requestConfig(w, r)
	if !ok {
		return
	}
	start, end := windowBounds(day, cfg.WindowDays)

	docs, err := s.store.FetchAgentWindow(ctx, agentID, start, end, s.cfg.WindowFetchSize)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	records := recordsFromDocs(docs)

	if err := s.attachEmbeddings(ctx, &cfg, records); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	summary, err := engine.Analyze(records, cfg)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	if summary.AgentID == "" {
		summary.AgentID = agentID
	}
	s.log.Info("agent summary",
		slog.String("run_id", run),
		slog.String("agent_id", agentID),
		slog.String("date", cfg.TargetDate),
		slog.Int("posts", len(records)),
	)
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	run := runID(w)

	cfg, day, ok := s.requestConfig(w, r)
	if !ok {
		return
	}
	start, end := windowBounds(day, cfg.WindowDays)

	agents := parseCSV(r.URL.Query().Get("agents"))
	if len(agents) == 0 {
		var err error
		if agents, err = s.store.ListAgents(ctx, day, end); err != nil {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
			return
		}
	}

	batches, err := s.fetchBatches(ctx, agents, start, end)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	var all []engine.PostRecord
	for _, records := range batches {
		all = append(all, records...)
	}
	if err := s.attachEmbeddings(ctx, &cfg, all); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	summaries, err := engine.AnalyzeTeam(ctx, batches, cfg, s.cfg.Parallelism)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}

	s.log.Info("leaderboard",
		slog.String("run_id", run),
		slog.String("date", cfg.TargetDate),
		slog.Int("agents", len(summaries)),
	)
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Date:    cfg.TargetDate,
		Entries: report.Leaderboard(summaries, nil),
		Team:    report.Team(summaries),
		Daily:   report.DailyRows(summaries),
	})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	run := runID(w)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "decode request: " + err.Error()})
		return
	}
	if len(req.Posts) > s.cfg.MaxAnalyzePosts {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("at most %d posts per request", s.cfg.MaxAnalyzePosts),
		})
		return
	}

	cfg, err := s.overlayConfig(req.Config)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	if err := s.attachEmbeddings(ctx, &cfg, req.Posts); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	summary, err := engine.Analyze(req.Posts, cfg)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	s.log.Info("analyzed batch",
		slog.String("run_id", run),
		slog.String("agent_id", summary.AgentID),
		slog.Int("posts", len(req.Posts)),
	)
	writeJSON(w, http.StatusOK, summary)
}

// overlayConfig applies the request's config fields on top of the base.
func (s *server) overlayConfig(raw json.RawMessage) (engine.Config, error) {
	cfg := s.base
	if len(raw) == 0 {
		return cfg, nil
	}

	// decode into a fresh set so the shared base set is never written
	cfg.Themes = nil
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return engine.Config{}, &engine.ConfigurationError{Field: "config", Err: err}
	}
	if cfg.Themes == nil {
		cfg.Themes = s.base.Themes
	} else if err := cfg.Themes.Prepare(); err != nil {
		return engine.Config{}, &engine.ConfigurationError{Field: "theme_signal_sets", Err: err}
	}
	if strategy, err := fingerprint.ParseStrategy(string(cfg.Strategy)); err == nil {
		cfg.Strategy = strategy
	}
	return cfg, nil
}

// requestConfig reads ?date= and ?strategy= into a copy of the base config.
func (s *server) requestConfig(w http.ResponseWriter, r *http.Request) (engine.Config, time.Time, bool) {
	cfg := s.base
	q := r.URL.Query()

	day, err := parseDay(q.Get("date"), cfg.Location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: "date"})
		return cfg, day, false
	}
	cfg.TargetDate = day.Format(models.DateLayout)

	if raw := q.Get("strategy"); raw != "" {
		strategy, err := fingerprint.ParseStrategy(raw)
		if err != nil {
			s.writeAnalysisError(w, &engine.ConfigurationError{Field: "fingerprint_strategy", Err: err})
			return cfg, day, false
		}
		cfg.Strategy = strategy
	}
	return cfg, day, true
}

func (s *server) fetchBatches(ctx context.Context, agents []string, start, end time.Time) (map[string][]engine.PostRecord, error) {
	batches := make(map[string][]engine.PostRecord, len(agents))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Parallelism, 1))
	for _, agentID := range agents {
		g.Go(func() error {
			docs, err := s.store.FetchAgentWindow(ctx, agentID, start, end, s.cfg.WindowFetchSize)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", agentID, err)
			}
			mu.Lock()
			batches[agentID] = recordsFromDocs(docs)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// attachEmbeddings snapshots pretrained vectors when the run uses the
// embedding strategy and a provider is configured.
func (s *server) attachEmbeddings(ctx context.Context, cfg *engine.Config, records []engine.PostRecord) error {
	if cfg.Strategy != fingerprint.Embedding || s.embeddings == nil {
		return nil
	}
	texts := make([]string, 0, len(records))
	for _, rec := range records {
		texts = append(texts, processing.Normalize(rec.RawText))
	}
	table, err := s.embeddings.Snapshot(ctx, texts)
	if err != nil {
		return fmt.Errorf("fetch embeddings: %w", err)
	}
	cfg.Embeddings = table
	cfg.EmbeddingDim = table.Dim()
	return nil
}

func (s *server) writeAnalysisError(w http.ResponseWriter, err error) {
	var malformed *engine.MalformedInputError
	var cfgErr *engine.ConfigurationError
	switch {
	case errors.As(err, &malformed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), RecordID: malformed.RecordID, Field: malformed.Field})
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Field: cfgErr.Field})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	default:
		s.log.Error("analysis failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func recordsFromDocs(docs []models.PostDocument) []engine.PostRecord {
	records := make([]engine.PostRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, engine.PostRecord{
			ID:          d.ID,
			AgentID:     d.AgentID,
			Timestamp:   d.Timestamp.UTC().Format(time.RFC3339Nano),
			RawText:     d.Text,
			ContentType: d.ContentType,
		})
	}
	return records
}

// runID tags a response so log lines and client reports can be matched.
func runID(w http.ResponseWriter) string {
	id := uuid.NewString()
	w.Header().Set("X-Run-ID", id)
	return id
}

// parseDay reads YYYY-MM-DD as midnight in loc; empty means today.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(models.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

// windowBounds returns [day - days, day + 1) as instants.
func windowBounds(day time.Time, days int) (time.Time, time.Time) {
	return day.AddDate(0, 0, -days), day.AddDate(0, 0, 1)
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts
	}
	return nil
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// nothing better to do
	}
}
