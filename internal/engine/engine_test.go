package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DeafMist/content-radar/backend/internal/engine"
	"github.com/DeafMist/content-radar/backend/internal/fingerprint"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/themes"
	"github.com/stretchr/testify/require"
)

func record(id, ts, text string) engine.PostRecord {
	return engine.PostRecord{ID: id, AgentID: "mika", Timestamp: ts, RawText: text}
}

func scenarioRecords() []engine.PostRecord {
	return []engine.PostRecord{
		record("p1", "2024-03-01T09:00:00Z", "Buy now! Limited offer!!"),
		record("p2", "2024-03-01T10:00:00Z", "BUY NOW LIMITED OFFER"),
		record("p3", "2024-03-02T09:00:00Z", "New product launch today"),
	}
}

func score(t *testing.T, s models.Score) float64 {
	t.Helper()
	v, ok := s.Value()
	require.True(t, ok, "expected a value, got %s", s)
	return v
}

func TestAnalyzeDuplicateScenario(t *testing.T) {
	summary, err := engine.Analyze(scenarioRecords(), engine.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, "mika", summary.AgentID)
	require.Equal(t, "2024-03-02", summary.TargetDate)
	require.Equal(t, models.DateRange{Start: "2024-02-01", End: "2024-03-02"}, summary.DateRange)
	require.Equal(t, 1, summary.TotalPosts)
	require.Equal(t, 1, summary.UniquePosts)
	require.Equal(t, 100.0, score(t, summary.FreshnessScore))
	require.Equal(t, 33.3, score(t, summary.BaselineScore))
	require.Empty(t, summary.SimilarityAlerts)

	require.Len(t, summary.Daily, 2)
	day1, day2 := summary.Daily[0], summary.Daily[1]
	require.Equal(t, "2024-03-01", day1.Date)
	require.Equal(t, 2, day1.NonEmptyPosts)
	require.Equal(t, 0, day1.UniquePosts)
	require.Equal(t, 2, day1.RecycledPosts)
	require.Equal(t, 0.0, score(t, day1.FreshnessScore))
	require.Equal(t, 0.0, score(t, day1.BaselineScore))
	require.Equal(t, 33.3, score(t, day2.BaselineScore))
	require.Greater(t, score(t, day2.FreshnessScore), score(t, day1.FreshnessScore))
}

func TestAnalyzeAlertsForTargetDay(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.TargetDate = "2024-03-01"

	summary, err := engine.Analyze(scenarioRecords(), cfg)
	require.NoError(t, err)

	require.Equal(t, 2, summary.TotalPosts)
	require.Equal(t, 2, summary.RecycledPosts)
	require.Equal(t, 0.0, score(t, summary.FreshnessScore))

	require.Len(t, summary.SimilarityAlerts, 2)
	first := summary.SimilarityAlerts[0]
	require.Equal(t, "p1", first.PostID)
	require.Equal(t, "p2", first.MatchedPostID)
	require.Equal(t, 1.0, first.Score)
	require.Equal(t, models.Duplicate, first.Classification)
	require.Equal(t, "Buy now! Limited offer!!", first.Snippet)
	require.Equal(t, "BUY NOW LIMITED OFFER", first.MatchedSnippet)

	cfg.AlertLimit = 1
	limited, err := engine.Analyze(scenarioRecords(), cfg)
	require.NoError(t, err)
	require.Len(t, limited.SimilarityAlerts, 1)
}

func TestAnalyzeEmptyPostCountsOnlyInTotal(t *testing.T) {
	records := []engine.PostRecord{
		record("a", "2024-03-01T09:00:00Z", "Weekly cashback up to 8%"),
		record("b", "2024-03-01T10:00:00Z", "   "),
		record("c", "2024-03-01T11:00:00Z", "Christmas jackpot rain tonight"),
	}
	summary, err := engine.Analyze(records, engine.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, 3, summary.TotalPosts)
	require.Equal(t, 2, summary.UniquePosts)
	require.Len(t, summary.Daily, 1)
	require.Equal(t, 2, summary.Daily[0].NonEmptyPosts)
	require.Equal(t, 1.0, score(t, summary.Daily[0].UniqueRatio))
	require.Equal(t, 100.0, score(t, summary.FreshnessScore))

	require.Len(t, summary.ThemeAssignments, 3)
	total := 0
	for _, n := range summary.ThemeDistribution {
		total += n
	}
	require.Equal(t, summary.TotalPosts, total)
	require.Equal(t, 1, summary.ThemeDistribution["cashback"])
	require.Equal(t, 1, summary.ThemeDistribution["jackpot"])
	require.Equal(t, 1, summary.ThemeDistribution[models.UncategorizedTheme])
	require.Empty(t, summary.Warnings)
}

func TestAnalyzeThemeScenario(t *testing.T) {
	set, err := themes.FromSignals([]string{"sale", "launch"}, map[string][]string{
		"sale":   {"discount", "offer", "sale"},
		"launch": {"new", "launch"},
	})
	require.NoError(t, err)

	cfg := engine.DefaultConfig()
	cfg.Themes = set
	records := []engine.PostRecord{
		record("a", "2024-03-01T09:00:00Z", "Limited offer this week"),
		record("b", "2024-03-01T10:00:00Z", "Completely unrelated text"),
	}
	summary, err := engine.Analyze(records, cfg)
	require.NoError(t, err)

	require.Equal(t, []models.ThemeAssignment{
		{PostID: "a", Theme: "sale", Confidence: 1, Strength: 1},
		{PostID: "b", Theme: models.UncategorizedTheme},
	}, summary.ThemeAssignments)
	require.Equal(t, map[string]int{"sale": 1, models.UncategorizedTheme: 1}, summary.ThemeDistribution)
}

func TestAnalyzeEmptyBatch(t *testing.T) {
	records := []engine.PostRecord{
		record("a", "2024-03-01T09:00:00Z", ""),
		record("b", "2024-03-01T10:00:00Z", "🎉🎉🎉"),
	}
	summary, err := engine.Analyze(records, engine.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, 2, summary.TotalPosts)
	require.False(t, summary.FreshnessScore.Valid())
	require.False(t, summary.AverageSimilarity.Valid())
	require.Empty(t, summary.ThemeDistribution)
	require.Len(t, summary.Warnings, 1)
	require.Equal(t, engine.WarningEmptyBatch, summary.Warnings[0].Code)

	data, err := json.Marshal(summary)
	require.NoError(t, err)
	require.Contains(t, string(data), `"freshness_score":"no_data"`)
}

func TestAnalyzeNoRecords(t *testing.T) {
	summary, err := engine.Analyze(nil, engine.DefaultConfig())
	require.NoError(t, err)
	require.Zero(t, summary.TotalPosts)
	require.False(t, summary.FreshnessScore.Valid())
	require.False(t, summary.BaselineScore.Valid())
	require.Len(t, summary.Warnings, 1)
}

func TestAnalyzeWindowExcludesOldPosts(t *testing.T) {
	records := []engine.PostRecord{
		record("old", "2024-01-15T09:00:00Z", "Weekly cashback up to 8%"),
		record("edge", "2024-03-01T09:00:00Z", "Christmas jackpot rain tonight"),
		record("new", "2024-03-31T09:00:00Z", "Weekly cashback up to 8%"),
	}
	summary, err := engine.Analyze(records, engine.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, "2024-03-01", summary.DateRange.Start)
	require.Equal(t, 100.0, score(t, summary.FreshnessScore))
	require.Empty(t, summary.SimilarityAlerts)
	require.Len(t, summary.Daily, 2)

	cfg := engine.DefaultConfig()
	cfg.WindowDays = 0
	narrow, err := engine.Analyze(records, cfg)
	require.NoError(t, err)
	require.Len(t, narrow.Daily, 1)
	require.False(t, narrow.AverageSimilarity.Valid())
}

func TestAnalyzeMatchesCopiesOutsideTrimmedVocabulary(t *testing.T) {
	records := []engine.PostRecord{
		record("p1", "2024-03-01T09:00:00Z", "promo alpha"),
		record("p2", "2024-03-01T10:00:00Z", "promo beta"),
		record("p3", "2024-03-01T11:00:00Z", "zzz yyy"),
		record("p4", "2024-03-01T12:00:00Z", "ZZZ yyy!!"),
	}
	cfg := engine.DefaultConfig()
	cfg.Lexical = fingerprint.LexicalOptions{MinN: 1, MaxN: 1, MaxFeatures: 1}

	summary, err := engine.Analyze(records, cfg)
	require.NoError(t, err)

	require.Equal(t, 4, summary.TotalPosts)
	require.Equal(t, 0, summary.UniquePosts)
	require.Equal(t, 4, summary.RecycledPosts)
	require.Equal(t, 0.0, score(t, summary.FreshnessScore))
	require.Len(t, summary.SimilarityAlerts, 4)

	matched := map[string]string{}
	for _, a := range summary.SimilarityAlerts {
		matched[a.PostID] = a.MatchedPostID
		require.Equal(t, 1.0, a.Score)
	}
	require.Equal(t, "p4", matched["p3"])
	require.Equal(t, "p3", matched["p4"])
}

func TestAnalyzeLaterRepostIsNotRecycledOnEarlierDay(t *testing.T) {
	records := []engine.PostRecord{
		record("a", "2024-03-01T09:00:00Z", "Weekly cashback up to 8%"),
		record("b", "2024-03-02T09:00:00Z", "WEEKLY CASHBACK UP TO 8%!!"),
	}
	cfg := engine.DefaultConfig()
	cfg.TargetDate = "2024-03-02"
	summary, err := engine.Analyze(records, cfg)
	require.NoError(t, err)

	require.Equal(t, 0.0, score(t, summary.FreshnessScore))
	require.Equal(t, 100.0, score(t, summary.Daily[0].FreshnessScore))
	require.Len(t, summary.SimilarityAlerts, 1)
	require.Equal(t, "a", summary.SimilarityAlerts[0].MatchedPostID)
	require.Equal(t, "2024-03-01", summary.SimilarityAlerts[0].MatchedDate)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	records := append(scenarioRecords(),
		record("p4", "2024-03-02T11:00:00Z", "Get up to 150% deposit bonus everyday"),
		record("p5", "2024-03-02T12:00:00Z", "Deposit bonus everyday, up to 150%!"),
		record("p6", "2024-03-02T12:00:00Z", ""),
	)
	reversed := make([]engine.PostRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	for _, strategy := range []fingerprint.Strategy{fingerprint.Lexical, fingerprint.Embedding} {
		cfg := engine.DefaultConfig()
		cfg.Strategy = strategy

		first, err := engine.Analyze(records, cfg)
		require.NoError(t, err)
		second, err := engine.Analyze(reversed, cfg)
		require.NoError(t, err)

		a, err := json.Marshal(first)
		require.NoError(t, err)
		b, err := json.Marshal(second)
		require.NoError(t, err)
		require.JSONEq(t, string(a), string(b), "strategy %s", strategy)
		require.Equal(t, a, b)
	}
}

func TestAnalyzeMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		records []engine.PostRecord
		field   string
	}{
		{name: "missing id", records: []engine.PostRecord{{AgentID: "mika", Timestamp: "2024-03-01", RawText: "x"}}, field: "id"},
		{name: "missing agent", records: []engine.PostRecord{{ID: "a", Timestamp: "2024-03-01", RawText: "x"}}, field: "agent_id"},
		{name: "missing timestamp", records: []engine.PostRecord{{ID: "a", AgentID: "mika", RawText: "x"}}, field: "timestamp"},
		{name: "bad timestamp", records: []engine.PostRecord{record("a", "yesterday", "x")}, field: "timestamp"},
		{name: "mixed agents", records: []engine.PostRecord{
			record("a", "2024-03-01", "x"),
			{ID: "b", AgentID: "sheena", Timestamp: "2024-03-01", RawText: "y"},
		}, field: "agent_id"},
		{name: "repeated id", records: []engine.PostRecord{
			record("a", "2024-03-01", "x"),
			record("a", "2024-03-01", "y"),
		}, field: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := engine.Analyze(tt.records, engine.DefaultConfig())
			require.Nil(t, summary)
			var malformed *engine.MalformedInputError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			require.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestAnalyzeConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engine.Config)
		field  string
	}{
		{name: "inverted thresholds", mutate: func(c *engine.Config) { c.DuplicateThreshold, c.NearDuplicateThreshold = 0.6, 0.8 }, field: "thresholds"},
		{name: "threshold out of range", mutate: func(c *engine.Config) { c.DuplicateThreshold = 1.5 }, field: "thresholds"},
		{name: "no themes", mutate: func(c *engine.Config) { c.Themes = nil }, field: "theme_signal_sets"},
		{name: "empty themes", mutate: func(c *engine.Config) { c.Themes = &themes.Set{} }, field: "theme_signal_sets"},
		{name: "unknown strategy", mutate: func(c *engine.Config) { c.Strategy = "bert" }, field: "fingerprint_strategy"},
		{name: "window too wide", mutate: func(c *engine.Config) { c.WindowDays = 45 }, field: "comparison_window_days"},
		{name: "bad target date", mutate: func(c *engine.Config) { c.TargetDate = "03/01/2024" }, field: "target_date"},
		{name: "embedding snapshot incomplete", mutate: func(c *engine.Config) {
			c.Strategy = fingerprint.Embedding
			c.Embeddings = fingerprint.NewTable("m", 2, map[string][]float32{"buy now limited offer": {1, 0}})
		}, field: "fingerprint_strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engine.DefaultConfig()
			tt.mutate(&cfg)
			summary, err := engine.Analyze(scenarioRecords(), cfg)
			require.Nil(t, summary)
			var cfgErr *engine.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestAnalyzeTeam(t *testing.T) {
	batches := map[string][]engine.PostRecord{
		"mika": scenarioRecords(),
		"sheena": {
			{ID: "s1", AgentID: "sheena", Timestamp: "2024-03-02T08:00:00Z", RawText: "Jackpot tonight only"},
		},
		"idle": nil,
	}

	serial, err := engine.AnalyzeTeam(context.Background(), batches, engine.DefaultConfig(), 1)
	require.NoError(t, err)
	parallel, err := engine.AnalyzeTeam(context.Background(), batches, engine.DefaultConfig(), 4)
	require.NoError(t, err)
	require.Equal(t, serial, parallel)

	require.Len(t, serial, 3)
	require.Equal(t, "idle", serial[0].AgentID)
	require.Len(t, serial[0].Warnings, 1)
	require.Equal(t, "mika", serial[1].AgentID)
	require.Equal(t, "sheena", serial[2].AgentID)
	require.Equal(t, map[string]int{"jackpot": 1}, serial[2].ThemeDistribution)
}

func TestAnalyzeTeamStopsOnError(t *testing.T) {
	batches := map[string][]engine.PostRecord{
		"mika":   scenarioRecords(),
		"broken": {{ID: "x", AgentID: "broken", Timestamp: "never", RawText: "promo"}},
	}
	_, err := engine.AnalyzeTeam(context.Background(), batches, engine.DefaultConfig(), 2)
	var malformed *engine.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	require.ErrorContains(t, err, "agent broken")

	_, err = engine.AnalyzeTeam(context.Background(), map[string][]engine.PostRecord{"sheena": scenarioRecords()}, engine.DefaultConfig(), 1)
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "agent_id", malformed.Field)
	require.Equal(t, "p1", malformed.RecordID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.AnalyzeTeam(ctx, map[string][]engine.PostRecord{"mika": scenarioRecords()}, engine.DefaultConfig(), 1)
	require.ErrorIs(t, err, context.Canceled)
}
