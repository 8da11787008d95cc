// Package engine runs one content analysis over a single agent's comparison
// window: normalize, fingerprint, compare, score freshness, classify themes
// and fold everything into an AgentSummary. A run keeps no state between
// calls and performs no I/O.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/DeafMist/content-radar/backend/internal/fingerprint"
	"github.com/DeafMist/content-radar/backend/internal/freshness"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/DeafMist/content-radar/backend/internal/processing"
	"github.com/DeafMist/content-radar/backend/internal/similarity"
	"github.com/DeafMist/content-radar/backend/internal/themes"
)

// PostRecord is the minimum a data source has to supply per post.
type PostRecord struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Timestamp   string `json:"timestamp"`
	RawText     string `json:"raw_text"`
	ContentType string `json:"content_type,omitempty"`
}

// ParseRecord validates one record and turns it into a normalized post
// without a fingerprint.
func ParseRecord(rec PostRecord, index int, loc *time.Location) (models.Post, error) {
	if rec.ID == "" {
		return models.Post{}, &MalformedInputError{Index: index, Field: "id", Reason: "is required"}
	}
	if rec.AgentID == "" {
		return models.Post{}, &MalformedInputError{RecordID: rec.ID, Index: index, Field: "agent_id", Reason: "is required"}
	}
	if rec.Timestamp == "" {
		return models.Post{}, &MalformedInputError{RecordID: rec.ID, Index: index, Field: "timestamp", Reason: "is required"}
	}
	ts := processing.ParseTimestamp(rec.Timestamp)
	if ts.IsZero() {
		return models.Post{}, &MalformedInputError{RecordID: rec.ID, Index: index, Field: "timestamp", Reason: fmt.Sprintf("%q cannot be parsed", rec.Timestamp)}
	}
	if loc == nil {
		loc = time.UTC
	}

	normalized := processing.Normalize(rec.RawText)
	return models.Post{
		ID:          rec.ID,
		AgentID:     rec.AgentID,
		Timestamp:   ts.UTC(),
		Date:        ts.In(loc).Format(models.DateLayout),
		RawText:     rec.RawText,
		Normalized:  normalized,
		ContentHash: processing.ContentHash(normalized),
		ContentType: rec.ContentType,
	}, nil
}

// Analyze runs the full pipeline over one agent's records. Configuration
// problems return *ConfigurationError and malformed records
// *MalformedInputError; in both cases no summary is produced.
func Analyze(records []PostRecord, cfg Config) (*models.AgentSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return analyze(records, cfg, "")
}

func analyze(records []PostRecord, cfg Config, agentHint string) (*models.AgentSummary, error) {
	posts, err := parseRecords(records, cfg.location())
	if err != nil {
		return nil, err
	}

	agentID := agentHint
	if len(posts) > 0 {
		if agentHint != "" && posts[0].AgentID != agentHint {
			return nil, &MalformedInputError{RecordID: posts[0].ID, Index: 0, Field: "agent_id", Reason: fmt.Sprintf("%q differs from batch agent %q", posts[0].AgentID, agentHint)}
		}
		agentID = posts[0].AgentID
	}

	target := cfg.TargetDate
	if target == "" {
		target = latestDate(posts)
	}
	if target == "" {
		return emptySummary(agentID, ""), nil
	}
	start := windowStart(target, cfg.WindowDays)

	window := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if p.Date >= start && p.Date <= target {
			window = append(window, p)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		if window[i].Timestamp.Equal(window[j].Timestamp) {
			return window[i].ID < window[j].ID
		}
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	texts := make([]string, len(window))
	for i, p := range window {
		texts[i] = p.Normalized
	}
	fp, err := fingerprint.New(cfg.Strategy, texts, cfg.fingerprintOptions())
	if err != nil {
		return nil, &ConfigurationError{Field: "fingerprint_strategy", Err: err}
	}
	for i := range window {
		window[i].Fingerprint = fingerprint.Build(fp, window[i].Normalized)
	}

	cands := similarity.FromPosts(window)
	result := similarity.Compare(cands, cfg.Thresholds(), nil)

	day := freshness.Day(agentID, target, window, result.Pairs)

	summary := &models.AgentSummary{
		AgentID:           agentID,
		DateRange:         models.DateRange{Start: start, End: target},
		TargetDate:        target,
		TotalPosts:        day.TotalPosts,
		UniquePosts:       day.UniquePosts,
		RecycledPosts:     day.RecycledPosts,
		FreshnessScore:    day.FreshnessScore,
		BaselineScore:     day.BaselineScore,
		AverageSimilarity: result.Mean(),
		ThemeDistribution: map[string]int{},
		SimilarityAlerts:  []models.SimilarityAlert{},
		ThemeAssignments:  []models.ThemeAssignment{},
		Daily:             dailyRecords(agentID, window, result.Pairs),
		ContentTypes:      map[string]int{},
	}

	dayPosts := make([]models.Post, 0, day.TotalPosts)
	for _, p := range window {
		if p.Date == target {
			dayPosts = append(dayPosts, p)
		}
	}

	if day.NonEmptyPosts == 0 {
		summary.Warnings = append(summary.Warnings, EmptyBatchWarning{AgentID: agentID, Date: target}.Warning())
	} else {
		classifier := themes.NewClassifier(cfg.Themes, cfg.NormalizeThemeByLength)
		summary.ThemeAssignments = classifier.Assign(dayPosts)
		summary.ThemeDistribution = themes.Distribution(summary.ThemeAssignments)
	}

	summary.SimilarityAlerts = alerts(dayPosts, window, cands, result.Pairs, target, cfg)

	raw := make([]string, 0, len(dayPosts))
	for _, p := range dayPosts {
		if !p.Empty() {
			raw = append(raw, p.RawText)
		}
		contentType := p.ContentType
		if contentType == "" {
			contentType = "unknown"
		}
		summary.ContentTypes[contentType]++
	}
	summary.TopKeywords = processing.TopKeywords(raw, cfg.KeywordLimit, cfg.KeywordMinLength)
	if summary.TopKeywords == nil {
		summary.TopKeywords = []string{}
	}

	return summary, nil
}

func parseRecords(records []PostRecord, loc *time.Location) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	agentID := ""
	for i, rec := range records {
		p, err := ParseRecord(rec, i, loc)
		if err != nil {
			return nil, err
		}
		if agentID == "" {
			agentID = p.AgentID
		} else if p.AgentID != agentID {
			return nil, &MalformedInputError{RecordID: p.ID, Index: i, Field: "agent_id", Reason: fmt.Sprintf("%q differs from batch agent %q", p.AgentID, agentID)}
		}
		if _, dup := seen[p.ID]; dup {
			return nil, &MalformedInputError{RecordID: p.ID, Index: i, Field: "id", Reason: "is repeated in the batch"}
		}
		seen[p.ID] = struct{}{}
		posts = append(posts, p)
	}
	return posts, nil
}

func latestDate(posts []models.Post) string {
	latest := ""
	for _, p := range posts {
		if p.Date > latest {
			latest = p.Date
		}
	}
	return latest
}

func windowStart(target string, days int) string {
	t, err := time.Parse(models.DateLayout, target)
	if err != nil {
		return target
	}
	return t.AddDate(0, 0, -days).Format(models.DateLayout)
}

func emptySummary(agentID, date string) *models.AgentSummary {
	return &models.AgentSummary{
		AgentID:           agentID,
		DateRange:         models.DateRange{Start: date, End: date},
		TargetDate:        date,
		FreshnessScore:    models.NoData(),
		BaselineScore:     models.NoData(),
		AverageSimilarity: models.NoData(),
		ThemeDistribution: map[string]int{},
		SimilarityAlerts:  []models.SimilarityAlert{},
		ThemeAssignments:  []models.ThemeAssignment{},
		Daily:             []models.FreshnessRecord{},
		TopKeywords:       []string{},
		ContentTypes:      map[string]int{},
		Warnings:          []models.Warning{EmptyBatchWarning{AgentID: agentID, Date: date}.Warning()},
	}
}

func dailyRecords(agentID string, window []models.Post, pairs []models.SimilarityPair) []models.FreshnessRecord {
	dates := make([]string, 0)
	seen := make(map[string]struct{})
	for _, p := range window {
		if _, ok := seen[p.Date]; ok {
			continue
		}
		seen[p.Date] = struct{}{}
		dates = append(dates, p.Date)
	}
	sort.Strings(dates)

	out := make([]models.FreshnessRecord, 0, len(dates))
	for _, date := range dates {
		out = append(out, freshness.Day(agentID, date, window, pairs))
	}
	return out
}

func alerts(dayPosts, window []models.Post, cands []similarity.Candidate, pairs []models.SimilarityPair, target string, cfg Config) []models.SimilarityAlert {
	byID := make(map[string]models.Post, len(window))
	for _, p := range window {
		byID[p.ID] = p
	}

	best := similarity.BestMatches(pairs, cands, func(postID, _ string) bool {
		return byID[postID].Date == target
	})

	out := make([]models.SimilarityAlert, 0, len(best))
	for _, p := range dayPosts {
		m, ok := best[p.ID]
		if !ok {
			continue
		}
		matched := byID[m.MatchID]
		out = append(out, models.SimilarityAlert{
			PostID:         p.ID,
			PostDate:       p.Date,
			Snippet:        processing.Snippet(p.RawText, cfg.SnippetLength),
			MatchedPostID:  matched.ID,
			MatchedDate:    matched.Date,
			MatchedSnippet: processing.Snippet(matched.RawText, cfg.SnippetLength),
			Score:          m.Score,
			Classification: m.Classification,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if cfg.AlertLimit > 0 && len(out) > cfg.AlertLimit {
		out = out[:cfg.AlertLimit]
	}
	return out
}
