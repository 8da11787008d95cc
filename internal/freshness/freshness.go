// Package freshness turns similarity pairs into per-day unique ratios and
// 0-100 freshness scores.
package freshness

import (
	"math"

	"github.com/DeafMist/content-radar/backend/internal/models"
)

// Ratio is unique/total, or no data when total is zero.
func Ratio(unique, total int) models.Score {
	if total <= 0 {
		return models.NoData()
	}
	return models.NewScore(float64(unique) / float64(total))
}

// Scale maps a ratio onto the 0-100 reporting scale with one decimal.
func Scale(ratio models.Score) models.Score {
	v, ok := ratio.Value()
	if !ok {
		return models.NoData()
	}
	return models.NewScore(math.Round(v*1000) / 10)
}

// Day scores one calendar day of an agent's window. window holds every post
// of the comparison window, the day included; pairs are the non-distinct
// pairs computed over that window. A post of the day counts as recycled when
// it is paired with another post dated on or before the day.
func Day(agentID, date string, window []models.Post, pairs []models.SimilarityPair) models.FreshnessRecord {
	dates := make(map[string]string, len(window))
	for _, p := range window {
		dates[p.ID] = p.Date
	}

	recycled := make(map[string]struct{})
	for _, pair := range pairs {
		da, db := dates[pair.PostA], dates[pair.PostB]
		if da == date && db != "" && db <= date {
			recycled[pair.PostA] = struct{}{}
		}
		if db == date && da != "" && da <= date {
			recycled[pair.PostB] = struct{}{}
		}
	}

	rec := models.FreshnessRecord{AgentID: agentID, Date: date}
	for _, p := range window {
		if p.Date != date {
			continue
		}
		rec.TotalPosts++
		if p.Empty() {
			continue
		}
		rec.NonEmptyPosts++
		if _, ok := recycled[p.ID]; ok {
			rec.RecycledPosts++
		}
	}
	rec.UniquePosts = rec.NonEmptyPosts - rec.RecycledPosts
	rec.UniqueRatio = Ratio(rec.UniquePosts, rec.NonEmptyPosts)
	rec.FreshnessScore = Scale(rec.UniqueRatio)
	rec.BaselineScore = Baseline(through(window, date), pairs)
	return rec
}

// Baseline applies the same computation to every post of the window. Pairs
// with a post outside the window are ignored. It is a comparison reference
// and never feeds a day's own score.
func Baseline(window []models.Post, pairs []models.SimilarityPair) models.Score {
	ids := make(map[string]struct{}, len(window))
	for _, p := range window {
		ids[p.ID] = struct{}{}
	}
	involved := make(map[string]struct{}, len(pairs)*2)
	for _, pair := range pairs {
		_, okA := ids[pair.PostA]
		_, okB := ids[pair.PostB]
		if !okA || !okB {
			continue
		}
		involved[pair.PostA] = struct{}{}
		involved[pair.PostB] = struct{}{}
	}

	total, unique := 0, 0
	for _, p := range window {
		if p.Empty() {
			continue
		}
		total++
		if _, ok := involved[p.ID]; !ok {
			unique++
		}
	}
	return Scale(Ratio(unique, total))
}

// through keeps the posts dated on or before date.
func through(window []models.Post, date string) []models.Post {
	out := make([]models.Post, 0, len(window))
	for _, p := range window {
		if p.Date <= date {
			out = append(out, p)
		}
	}
	return out
}
