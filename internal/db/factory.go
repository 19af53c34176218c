package db

import (
	"context"
	"fmt"
	"time"

	"CraneProfiler/internal/aggregate"
	"CraneProfiler/internal/config"
	"CraneProfiler/internal/summary"
)

func NewDatabase(cfg config.DBConfig) (DBInterface, error) {
	switch cfg.Type {
	case config.DBNone, "":
		return Discard{}, nil

	case config.DBInfluxDB:
		if cfg.InfluxDB == nil {
			return nil, fmt.Errorf("influxdb config is nil")
		}
		return NewInfluxDB(cfg.InfluxDB)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// Discard accepts and drops every result.
type Discard struct{}

func (Discard) SaveTrialSummary(context.Context, string, *summary.Record) error { return nil }

func (Discard) SavePowerSeries(context.Context, string, string, string, time.Time, []aggregate.PowerPoint) error {
	return nil
}

func (Discard) Close() error { return nil }
