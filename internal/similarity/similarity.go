// Package similarity scores fingerprint pairs and classifies them as
// duplicate, near-duplicate or distinct.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/DeafMist/content-radar/backend/internal/models"
)

// Thresholds partition similarity scores. Duplicate must be strictly above
// NearDuplicate and both must lie in (0, 1].
type Thresholds struct {
	Duplicate     float64 `json:"duplicate_threshold"`
	NearDuplicate float64 `json:"near_duplicate_threshold"`
}

// DefaultThresholds flags 0.85 and above as duplicate, 0.70 and above as
// near-duplicate.
func DefaultThresholds() Thresholds {
	return Thresholds{Duplicate: 0.85, NearDuplicate: 0.70}
}

// Validate checks bounds and ordering.
func (t Thresholds) Validate() error {
	if t.NearDuplicate <= 0 || t.NearDuplicate > 1 {
		return fmt.Errorf("near duplicate threshold %v outside (0,1]", t.NearDuplicate)
	}
	if t.Duplicate <= 0 || t.Duplicate > 1 {
		return fmt.Errorf("duplicate threshold %v outside (0,1]", t.Duplicate)
	}
	if t.Duplicate <= t.NearDuplicate {
		return fmt.Errorf("duplicate threshold %v must exceed near duplicate threshold %v", t.Duplicate, t.NearDuplicate)
	}
	return nil
}

// Classify maps a score to exactly one classification.
func (t Thresholds) Classify(score float64) models.Classification {
	switch {
	case score >= t.Duplicate:
		return models.Duplicate
	case score >= t.NearDuplicate:
		return models.NearDuplicate
	default:
		return models.Distinct
	}
}

// Cosine returns the cosine similarity of a and b clamped to [0,1]. Empty or
// zero vectors score 0. The result does not depend on argument order.
func Cosine(a, b models.Fingerprint) float64 {
	if a.IsEmpty() || b.IsEmpty() {
		return 0
	}

	var dot float64
	i, j := 0, 0
	for i < len(a.Values) && j < len(b.Values) {
		ai, bj := indexAt(a, i), indexAt(b, j)
		switch {
		case ai == bj:
			dot += a.Values[i] * b.Values[j]
			i++
			j++
		case ai < bj:
			i++
		default:
			j++
		}
	}

	na, nb := squaredNorm(a.Values), squaredNorm(b.Values)
	if na == 0 || nb == 0 {
		return 0
	}
	score := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, score))
}

func indexAt(f models.Fingerprint, k int) int {
	if len(f.Indices) == 0 {
		return k
	}
	return f.Indices[k]
}

func squaredNorm(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	return sum
}

// Candidate is one post taking part in a comparison window.
type Candidate struct {
	ID          string
	Timestamp   time.Time
	Hash        string
	Fingerprint models.Fingerprint
}

// FromPosts builds candidates from fingerprinted posts.
func FromPosts(posts []models.Post) []Candidate {
	out := make([]Candidate, 0, len(posts))
	for _, p := range posts {
		out = append(out, Candidate{ID: p.ID, Timestamp: p.Timestamp, Hash: p.ContentHash, Fingerprint: p.Fingerprint})
	}
	return out
}

func earlier(a, b Candidate) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID < b.ID
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Result holds the non-distinct pairs of a comparison plus running totals
// over every compared pair.
type Result struct {
	Pairs    []models.SimilarityPair
	Compared int
	ScoreSum float64
}

// Mean is the average score over every compared pair, or no data when
// nothing was compared.
func (r Result) Mean() models.Score {
	if r.Compared == 0 {
		return models.NoData()
	}
	return models.NewScore(math.Round(r.ScoreSum/float64(r.Compared)*10000) / 10000)
}

// Compare scores every unordered pair of non-empty candidates; only the first
// candidate of a repeated id takes part. A candidate is empty when it has no
// content hash; a non-empty text whose fingerprint has no coordinates is still
// compared. When focus is set only pairs touching a focus candidate are
// scored. Identical content hashes score exactly 1. Distinct pairs are
// counted but not returned.
func Compare(cands []Candidate, th Thresholds, focus func(Candidate) bool) Result {
	active := make([]Candidate, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		if c.Hash == "" {
			continue
		}
		// a repeated id would otherwise pair a post with itself
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		active = append(active, c)
	}
	var res Result
	if len(active) < 2 {
		return res
	}
	sort.SliceStable(active, func(i, j int) bool { return earlier(active[i], active[j]) })

	for i := 0; i < len(active); i++ {
		a := active[i]
		for j := i + 1; j < len(active); j++ {
			b := active[j]
			if focus != nil && !focus(a) && !focus(b) {
				continue
			}

			score := round(Score(a, b))
			res.Compared++
			res.ScoreSum += score

			class := th.Classify(score)
			if class == models.Distinct {
				continue
			}
			res.Pairs = append(res.Pairs, models.SimilarityPair{
				PostA:          a.ID,
				PostB:          b.ID,
				Score:          score,
				Classification: class,
			})
		}
	}
	return res
}

// Score compares two candidates.
func Score(a, b Candidate) float64 {
	if a.Hash != "" && a.Hash == b.Hash {
		return 1
	}
	return Cosine(a.Fingerprint, b.Fingerprint)
}

func round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

// Match is the most similar counterpart of a post.
type Match struct {
	PostID         string
	MatchID        string
	MatchTime      time.Time
	Score          float64
	Classification models.Classification
}

// BestMatches picks, for every post that appears in pairs, the counterpart
// with the highest score. Equal scores prefer the earlier counterpart, then
// the smaller id. keep, when set, filters which counterparts are eligible.
func BestMatches(pairs []models.SimilarityPair, cands []Candidate, keep func(postID, matchID string) bool) map[string]Match {
	times := make(map[string]time.Time, len(cands))
	for _, c := range cands {
		times[c.ID] = c.Timestamp
	}

	best := make(map[string]Match)
	consider := func(postID, matchID string, pair models.SimilarityPair) {
		if keep != nil && !keep(postID, matchID) {
			return
		}
		m := Match{
			PostID:         postID,
			MatchID:        matchID,
			MatchTime:      times[matchID],
			Score:          pair.Score,
			Classification: pair.Classification,
		}
		cur, ok := best[postID]
		if !ok || better(m, cur) {
			best[postID] = m
		}
	}
	for _, pair := range pairs {
		consider(pair.PostA, pair.PostB, pair)
		consider(pair.PostB, pair.PostA, pair)
	}
	return best
}

func better(m, cur Match) bool {
	if m.Score != cur.Score {
		return m.Score > cur.Score
	}
	if !m.MatchTime.Equal(cur.MatchTime) {
		return m.MatchTime.Before(cur.MatchTime)
	}
	return m.MatchID < cur.MatchID
}
