// Package report folds agent summaries into leaderboard and team views. All
// functions are pure and safe to call on every request.
package report

import (
	"sort"

	"github.com/DeafMist/content-radar/backend/internal/freshness"
	"github.com/DeafMist/content-radar/backend/internal/models"
)

// Leaderboard ranks agents by freshness (no data last), then total posts,
// then agent id. Agents without metadata are listed under their id.
func Leaderboard(summaries []*models.AgentSummary, agents []models.Agent) []models.LeaderboardEntry {
	meta := make(map[string]models.Agent, len(agents))
	for _, a := range agents {
		meta[a.ID] = a
	}

	entries := make([]models.LeaderboardEntry, 0, len(summaries))
	for _, s := range summaries {
		if s == nil {
			continue
		}
		a, ok := meta[s.AgentID]
		if !ok {
			a = models.Agent{ID: s.AgentID, Name: s.AgentID}
		}
		entries = append(entries, models.LeaderboardEntry{
			AgentID:        s.AgentID,
			Name:           a.Name,
			Team:           a.Team,
			TotalPosts:     s.TotalPosts,
			UniquePosts:    s.UniquePosts,
			FreshnessScore: s.FreshnessScore,
			BaselineScore:  s.BaselineScore,
			Alerts:         len(s.SimilarityAlerts),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return ranksBefore(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func ranksBefore(a, b models.LeaderboardEntry) bool {
	av, aok := a.FreshnessScore.Value()
	bv, bok := b.FreshnessScore.Value()
	if aok != bok {
		return aok
	}
	if aok && av != bv {
		return av > bv
	}
	if a.TotalPosts != b.TotalPosts {
		return a.TotalPosts > b.TotalPosts
	}
	return a.AgentID < b.AgentID
}

// Team pools every summary. The team freshness is computed over the pooled
// posts, not averaged over agents.
func Team(summaries []*models.AgentSummary) models.TeamSummary {
	team := models.TeamSummary{ThemeDistribution: make(map[string]int)}
	nonEmpty := 0
	for _, s := range summaries {
		if s == nil {
			continue
		}
		team.Agents++
		team.TotalPosts += s.TotalPosts
		team.UniquePosts += s.UniquePosts
		team.RecycledPosts += s.RecycledPosts
		team.Alerts += len(s.SimilarityAlerts)
		nonEmpty += s.UniquePosts + s.RecycledPosts
		for label, n := range s.ThemeDistribution {
			team.ThemeDistribution[label] += n
		}
	}
	team.FreshnessScore = freshness.Scale(freshness.Ratio(team.UniquePosts, nonEmpty))
	return team
}

// DailyRows flattens the per-day records of every summary, ordered by agent
// then date, for row-oriented reporting sinks.
func DailyRows(summaries []*models.AgentSummary) []models.FreshnessRecord {
	var rows []models.FreshnessRecord
	for _, s := range summaries {
		if s == nil {
			continue
		}
		rows = append(rows, s.Daily...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].AgentID != rows[j].AgentID {
			return rows[i].AgentID < rows[j].AgentID
		}
		return rows[i].Date < rows[j].Date
	})
	return rows
}
