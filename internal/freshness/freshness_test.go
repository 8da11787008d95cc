package freshness_test

import (
	"encoding/json"
	"testing"

	"github.com/DeafMist/content-radar/backend/internal/freshness"
	"github.com/DeafMist/content-radar/backend/internal/models"
	"github.com/stretchr/testify/require"
)

func post(id, date, normalized string) models.Post {
	return models.Post{ID: id, AgentID: "mika", Date: date, Normalized: normalized}
}

func TestRatioAndScale(t *testing.T) {
	require.False(t, freshness.Ratio(0, 0).Valid())
	require.False(t, freshness.Scale(freshness.Ratio(3, 0)).Valid())

	v, ok := freshness.Scale(freshness.Ratio(2, 3)).Value()
	require.True(t, ok)
	require.Equal(t, 66.7, v)

	v, _ = freshness.Scale(freshness.Ratio(0, 2)).Value()
	require.Equal(t, 0.0, v)
}

func TestDayScenario(t *testing.T) {
	window := []models.Post{
		post("p1", "2024-03-01", "buy now limited offer"),
		post("p2", "2024-03-01", "buy now limited offer"),
		post("p3", "2024-03-02", "new product launch today"),
	}
	pairs := []models.SimilarityPair{
		{PostA: "p1", PostB: "p2", Score: 1, Classification: models.Duplicate},
	}

	first := freshness.Day("mika", "2024-03-01", window, pairs)
	require.Equal(t, 2, first.TotalPosts)
	require.Equal(t, 0, first.UniquePosts)
	require.Equal(t, 2, first.RecycledPosts)
	v1, ok := first.FreshnessScore.Value()
	require.True(t, ok)
	require.Equal(t, 0.0, v1)

	second := freshness.Day("mika", "2024-03-02", window, pairs)
	v2, ok := second.FreshnessScore.Value()
	require.True(t, ok)
	require.Equal(t, 100.0, v2)
	require.Greater(t, v2, v1)

	base, _ := second.BaselineScore.Value()
	require.Equal(t, 33.3, base)

	base, _ = first.BaselineScore.Value()
	require.Equal(t, 0.0, base)
}

func TestBaselineIgnoresLaterPosts(t *testing.T) {
	window := []models.Post{
		post("p1", "2024-03-01", "weekly cashback up to 8"),
		post("p2", "2024-03-01", "christmas angpao rain"),
		post("p3", "2024-03-02", "weekly cashback up to 8"),
	}
	pairs := []models.SimilarityPair{
		{PostA: "p1", PostB: "p3", Score: 1, Classification: models.Duplicate},
	}

	first := freshness.Day("mika", "2024-03-01", window, pairs)
	require.Equal(t, 2, first.UniquePosts)
	base, ok := first.BaselineScore.Value()
	require.True(t, ok)
	require.Equal(t, 100.0, base)

	second := freshness.Day("mika", "2024-03-02", window, pairs)
	base, _ = second.BaselineScore.Value()
	require.Equal(t, 33.3, base)
}

func TestDayEmptyPostsCountedButNotCompared(t *testing.T) {
	window := []models.Post{
		post("p1", "2024-03-01", "promo today"),
		post("p2", "2024-03-01", ""),
		post("p3", "2024-03-01", "jackpot tonight"),
	}
	rec := freshness.Day("mika", "2024-03-01", window, nil)

	require.Equal(t, 3, rec.TotalPosts)
	require.Equal(t, 2, rec.NonEmptyPosts)
	require.Equal(t, 2, rec.UniquePosts)
	ratio, _ := rec.UniqueRatio.Value()
	require.Equal(t, 1.0, ratio)
}

func TestDayNoDataSentinel(t *testing.T) {
	window := []models.Post{post("p1", "2024-03-01", ""), post("p2", "2024-03-01", "")}
	rec := freshness.Day("mika", "2024-03-01", window, nil)

	require.Equal(t, 2, rec.TotalPosts)
	require.False(t, rec.UniqueRatio.Valid())
	require.False(t, rec.FreshnessScore.Valid())
	require.False(t, rec.BaselineScore.Valid())

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(data), `"freshness_score":"no_data"`)
}

func TestDayIgnoresLaterCounterparts(t *testing.T) {
	window := []models.Post{
		post("p1", "2024-03-01", "promo today"),
		post("p2", "2024-03-05", "promo today"),
	}
	pairs := []models.SimilarityPair{{PostA: "p1", PostB: "p2", Score: 1, Classification: models.Duplicate}}

	early := freshness.Day("mika", "2024-03-01", window, pairs)
	require.Equal(t, 1, early.UniquePosts)

	late := freshness.Day("mika", "2024-03-05", window, pairs)
	require.Equal(t, 0, late.UniquePosts)
}
