package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Classification labels a similarity pair.
type Classification string

const (
	Duplicate     Classification = "duplicate"
	NearDuplicate Classification = "near_duplicate"
	Distinct      Classification = "distinct"
)

// UncategorizedTheme is assigned when no configured theme matches.
const UncategorizedTheme = "uncategorized"

// SimilarityPair links two posts of the same comparison window. PostA is the
// earlier of the two.
type SimilarityPair struct {
	PostA          string         `json:"post_a_id"`
	PostB          string         `json:"post_b_id"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
}

// Other returns the counterpart of id in the pair.
func (p SimilarityPair) Other(id string) string {
	if p.PostA == id {
		return p.PostB
	}
	return p.PostA
}

// Involves reports whether id is one side of the pair.
func (p SimilarityPair) Involves(id string) bool {
	return p.PostA == id || p.PostB == id
}

// ThemeAssignment is the single primary theme of a post.
type ThemeAssignment struct {
	PostID     string  `json:"post_id"`
	Theme      string  `json:"theme_label"`
	Confidence float64 `json:"confidence"`
	Strength   float64 `json:"strength"`
}

// NoDataLabel is how a Score without a value is serialized.
const NoDataLabel = "no_data"

// Score is a reporting value that may be explicitly absent. Absence is never
// encoded as zero.
type Score struct {
	value float64
	valid bool
}

// NewScore wraps a computed value.
func NewScore(v float64) Score {
	return Score{value: v, valid: true}
}

// NoData is the sentinel for a score that could not be computed.
func NoData() Score {
	return Score{}
}

// Value returns the score and whether it is present.
func (s Score) Value() (float64, bool) {
	return s.value, s.valid
}

// Valid reports whether the score carries a value.
func (s Score) Valid() bool {
	return s.valid
}

func (s Score) String() string {
	if !s.valid {
		return NoDataLabel
	}
	return strconv.FormatFloat(s.value, 'f', -1, 64)
}

// MarshalJSON writes the number, or the no-data label.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return json.Marshal(NoDataLabel)
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON accepts a number or the no-data label.
func (s *Score) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		if label != NoDataLabel {
			return fmt.Errorf("unexpected score label %q", label)
		}
		*s = NoData()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode score: %w", err)
	}
	*s = NewScore(v)
	return nil
}

// FreshnessRecord is one agent's freshness for one day. BaselineScore covers
// the run's window up to and including Date; later posts never count.
type FreshnessRecord struct {
	AgentID        string `json:"agent_id"`
	Date           string `json:"date"`
	TotalPosts     int    `json:"total_posts"`
	NonEmptyPosts  int    `json:"non_empty_posts"`
	UniquePosts    int    `json:"unique_posts"`
	RecycledPosts  int    `json:"recycled_posts"`
	UniqueRatio    Score  `json:"unique_ratio"`
	FreshnessScore Score  `json:"freshness_score"`
	BaselineScore  Score  `json:"baseline_monthly_score"`
}

// SimilarityAlert describes the best earlier-or-same-window match of a
// target-day post.
type SimilarityAlert struct {
	PostID         string         `json:"post_id"`
	PostDate       string         `json:"post_date"`
	Snippet        string         `json:"snippet"`
	MatchedPostID  string         `json:"matched_post_id"`
	MatchedDate    string         `json:"matched_date"`
	MatchedSnippet string         `json:"matched_snippet"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Warning is a non-fatal condition met during an analysis run.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AgentSummary folds one analysis run. It is derived data and is recomputed
// on demand.
type AgentSummary struct {
	AgentID           string            `json:"agent_id"`
	DateRange         DateRange         `json:"date_range"`
	TargetDate        string            `json:"target_date"`
	TotalPosts        int               `json:"total_posts"`
	UniquePosts       int               `json:"unique_posts"`
	RecycledPosts     int               `json:"recycled_posts"`
	FreshnessScore    Score             `json:"freshness_score"`
	BaselineScore     Score             `json:"baseline_monthly_score"`
	AverageSimilarity Score             `json:"average_similarity"`
	ThemeDistribution map[string]int    `json:"theme_distribution"`
	SimilarityAlerts  []SimilarityAlert `json:"similarity_alerts"`
	ThemeAssignments  []ThemeAssignment `json:"theme_assignments"`
	Daily             []FreshnessRecord `json:"daily"`
	TopKeywords       []string          `json:"top_keywords"`
	ContentTypes      map[string]int    `json:"content_types"`
	Warnings          []Warning         `json:"warnings,omitempty"`
}

// Agent carries display metadata for leaderboards.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
}

// LeaderboardEntry is one ranked agent.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	AgentID        string `json:"agent_id"`
	Name           string `json:"name"`
	Team           string `json:"team,omitempty"`
	TotalPosts     int    `json:"total_posts"`
	UniquePosts    int    `json:"unique_posts"`
	FreshnessScore Score  `json:"freshness_score"`
	BaselineScore  Score  `json:"baseline_monthly_score"`
	Alerts         int    `json:"similarity_alerts"`
}

// TeamSummary pools every agent of a report.
type TeamSummary struct {
	Agents            int            `json:"agents"`
	TotalPosts        int            `json:"total_posts"`
	UniquePosts       int            `json:"unique_posts"`
	RecycledPosts     int            `json:"recycled_posts"`
	FreshnessScore    Score          `json:"freshness_score"`
	ThemeDistribution map[string]int `json:"theme_distribution"`
	Alerts            int            `json:"similarity_alerts"`
}
