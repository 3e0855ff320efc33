package jobs

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
)

// Counter reports entity totals
type Counter interface {
	CountOrganizations(ctx context.Context) (int64, error)
	CountTeams(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)
}

// GaugeRefresher copies entity totals and connection pool statistics into
// the Prometheus gauges
type GaugeRefresher struct {
	store   Counter
	metrics *observability.Metrics
	dbStats func() sql.DBStats
}

// NewGaugeRefresher creates a refresher over store
func NewGaugeRefresher(store Counter, metrics *observability.Metrics) *GaugeRefresher {
	return &GaugeRefresher{store: store, metrics: metrics}
}

// WithDBStats also publishes the pool statistics returned by stats
func (g *GaugeRefresher) WithDBStats(stats func() sql.DBStats) *GaugeRefresher {
	g.dbStats = stats
	return g
}

// Refresh counts every kind concurrently. Gauges are only updated when all
// counts succeed.
func (g *GaugeRefresher) Refresh(ctx context.Context) error {
	counts := []struct {
		kind  models.Kind
		count func(context.Context) (int64, error)
	}{
		{models.KindOrganization, g.store.CountOrganizations},
		{models.KindTeam, g.store.CountTeams},
		{models.KindUser, g.store.CountUsers},
	}
	totals := make([]int64, len(counts))

	eg, ctx := errgroup.WithContext(ctx)
	for i, c := range counts {
		i, c := i, c
		eg.Go(func() error {
			n, err := c.count(ctx)
			if err != nil {
				return fmt.Errorf("failed to count %s: %w", c.kind, err)
			}
			totals[i] = n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, c := range counts {
		g.metrics.SetEntityCount(c.kind, totals[i])
	}
	if g.dbStats != nil {
		g.metrics.UpdateDBStats(g.dbStats())
	}
	return nil
}
