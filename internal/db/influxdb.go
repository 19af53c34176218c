package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	logrus "github.com/sirupsen/logrus"

	"CraneProfiler/internal/aggregate"
	"CraneProfiler/internal/config"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"
)

var log = logrus.WithField("component", "InfluxDB")

const (
	trialMeasurement = "trial_summary"
	powerMeasurement = "power_series"
)

type InfluxDB struct {
	client       influxdb2.Client
	org          string
	trialBucket  string
	seriesBucket string
}

func NewInfluxDB(cfg *config.InfluxDBConfig) (*InfluxDB, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping InfluxDB: %w", err)
	}

	db := &InfluxDB{
		client:       client,
		org:          cfg.Org,
		trialBucket:  cfg.TrialBucket,
		seriesBucket: cfg.SeriesBucket,
	}

	for _, bucket := range []string{db.trialBucket, db.seriesBucket} {
		if err := db.createBucketIfNotExists(bucket); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	return db, nil
}

func (db *InfluxDB) SaveTrialSummary(ctx context.Context, experiment string, r *summary.Record) error {
	log.Infof("Saving summary of trial %d for experiment %s", r.Trial, experiment)

	writeAPI := db.client.WriteAPIBlocking(db.org, db.trialBucket)
	if err := writeAPI.WritePoint(ctx, trialPoint(experiment, r)); err != nil {
		return fmt.Errorf("failed to write trial summary: %w", err)
	}
	return nil
}

func (db *InfluxDB) SavePowerSeries(ctx context.Context, experiment string, trial string, profiler string,
	base time.Time, points []aggregate.PowerPoint) error {
	if len(points) == 0 {
		return nil
	}
	log.Infof("Saving power series of %s/%s, count: %d", experiment, trial, len(points))

	writeAPI := db.client.WriteAPIBlocking(db.org, db.seriesBucket)
	if err := writeAPI.WritePoint(ctx, seriesPoints(experiment, trial, profiler, base, points)...); err != nil {
		return fmt.Errorf("failed to write power series: %w", err)
	}
	return nil
}

func (db *InfluxDB) Close() error {
	db.client.Close()
	return nil
}

func trialPoint(experiment string, r *summary.Record) *write.Point {
	status := summary.StatusSuccess
	if !r.Success {
		status = summary.StatusFailure
	}
	return influxdb2.NewPoint(
		trialMeasurement,
		map[string]string{
			"experiment": experiment,
			"trial":      strconv.Itoa(r.Trial),
			"platform":   r.Platform,
			"node":       util.NodeName(),
			"status":     status,
		},
		map[string]interface{}{
			"command":   r.Command,
			"time_s":    r.TimeSec,
			"energy_uj": r.EnergyUJ,
			"power_w":   r.PowerW,
			"exit_code": r.ExitCode,
		},
		r.Datetime,
	)
}

func seriesPoints(experiment string, trial string, profiler string,
	base time.Time, points []aggregate.PowerPoint) []*write.Point {
	tags := map[string]string{
		"experiment": experiment,
		"trial":      trial,
		"profiler":   profiler,
	}

	result := make([]*write.Point, 0, len(points))
	for _, p := range points {
		result = append(result, influxdb2.NewPoint(
			powerMeasurement,
			tags,
			map[string]interface{}{
				"power_w":   p.Power,
				"offset_ns": p.Time,
			},
			base.Add(time.Duration(p.Time)),
		))
	}
	return result
}

func (db *InfluxDB) createBucketIfNotExists(bucketName string) error {
	ctx := context.Background()

	if err := db.createOrgIfNotExists(); err != nil {
		return fmt.Errorf("failed to ensure organization exists: %w", err)
	}

	bucketsAPI := db.client.BucketsAPI()
	bucket, _ := bucketsAPI.FindBucketByName(ctx, bucketName)
	if bucket != nil {
		log.Debugf("Bucket already exists: %s", bucketName)
		return nil
	}

	log.Infof("Creating bucket: %s", bucketName)
	org, err := db.client.OrganizationsAPI().FindOrganizationByName(ctx, db.org)
	if err != nil {
		return fmt.Errorf("failed to find organization: %w", err)
	}

	if _, err := bucketsAPI.CreateBucketWithName(ctx, org, bucketName); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (db *InfluxDB) createOrgIfNotExists() error {
	ctx := context.Background()
	orgAPI := db.client.OrganizationsAPI()

	if org, _ := orgAPI.FindOrganizationByName(ctx, db.org); org != nil {
		return nil
	}

	log.Infof("Creating organization: %s", db.org)
	if _, err := orgAPI.CreateOrganizationWithName(ctx, db.org); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}
