// Package db publishes profiling results to an external time series store.
package db

import (
	"context"
	"time"

	"CraneProfiler/internal/aggregate"
	"CraneProfiler/internal/summary"
)

type DBInterface interface {
	SaveTrialSummary(ctx context.Context, experiment string, r *summary.Record) error
	// SavePowerSeries stores a power series whose point times are
	// nanosecond offsets from base.
	SavePowerSeries(ctx context.Context, experiment string, trial string, profiler string,
		base time.Time, points []aggregate.PowerPoint) error
	Close() error
}
