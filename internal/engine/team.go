package engine

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/content-radar/backend/internal/models"
)

// AnalyzeTeam runs Analyze for every agent batch with at most parallelism
// runs in flight. Runs share nothing, so the summaries do not depend on
// scheduling. The first error cancels the remaining runs; summaries come back
// ordered by agent id.
func AnalyzeTeam(ctx context.Context, batches map[string][]PostRecord, cfg Config, parallelism int) ([]*models.AgentSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	agents := make([]string, 0, len(batches))
	for agentID := range batches {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)

	out := make([]*models.AgentSummary, len(agents))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, agentID := range agents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			summary, err := analyze(batches[agentID], cfg, agentID)
			if err != nil {
				return fmt.Errorf("agent %s: %w", agentID, err)
			}
			out[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
