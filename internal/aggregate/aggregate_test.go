package aggregate

import (
	"math"
	"reflect"
	"testing"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/ingest"
	"CraneProfiler/internal/summary"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-3
}

func trialWith(name string, logs ...*heartbeat.Log) *ingest.Trial {
	return &ingest.Trial{Name: name, Logs: logs}
}

func TestStats(t *testing.T) {
	testCases := []struct {
		name   string
		values []float64
		mean   float64
		stddev float64
	}{
		{"three values", []float64{30, 40, 50}, 40, 8.165},
		{"single value", []float64{7}, 7, 0},
		{"identical values", []float64{2, 2, 2, 2}, 2, 0},
		{"empty", nil, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := Stats(tc.values)
			if !almostEqual(s.Mean, tc.mean) || !almostEqual(s.StdDev, tc.stddev) || s.Samples != len(tc.values) {
				t.Fatalf("Stats(%v) = %+v, want mean %v stddev %v", tc.values, s, tc.mean, tc.stddev)
			}
		})
	}
}

func TestTotalsByProfiler(t *testing.T) {
	exp := &ingest.Experiment{Trials: []*ingest.Trial{
		trialWith("trial_0",
			heartbeat.NewLog("GPU", []heartbeat.Interval{{StartTime: 20, EndTime: 80, StartEnergy: 10, EndEnergy: 20}}),
			heartbeat.NewLog("APPLICATION", []heartbeat.Interval{
				{StartTime: 0, EndTime: 10, StartEnergy: 0, EndEnergy: 30},
				{StartTime: 10, EndTime: 30, StartEnergy: 30, EndEnergy: 35},
			}),
		),
		trialWith("trial_1",
			heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 40, StartEnergy: 0, EndEnergy: 45}}),
		),
		trialWith("trial_2",
			heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 50, StartEnergy: 0, EndEnergy: 40}}),
			&heartbeat.Log{Profiler: "GPU", Status: heartbeat.StatusMalformed},
		),
	}}

	totals := TotalsByProfiler(exp)
	if len(totals) != 2 || totals[0].Name != "APPLICATION" || totals[1].Name != "GPU" {
		t.Fatalf("unexpected totals %+v", totals)
	}

	app := totals[0]
	if !almostEqual(app.Time.Mean, 40) || !almostEqual(app.Time.StdDev, 8.165) || app.Time.Samples != 3 {
		t.Fatalf("unexpected application time %+v", app.Time)
	}
	if !almostEqual(app.Energy.Mean, 40) || !almostEqual(app.Energy.StdDev, 4.082) {
		t.Fatalf("unexpected application energy %+v", app.Energy)
	}

	gpu := totals[1]
	if gpu.Time.Samples != 1 || gpu.Time.Mean != 60 || gpu.Time.StdDev != 0 || gpu.Energy.Mean != 10 {
		t.Fatalf("malformed logs must not count, got %+v", gpu)
	}
}

func TestTotalsByProfilerOrderIndependent(t *testing.T) {
	a := trialWith("a", heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 30, StartEnergy: 0, EndEnergy: 3}}))
	b := trialWith("b", heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 40, StartEnergy: 0, EndEnergy: 7}}))
	c := trialWith("c", heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 50, StartEnergy: 0, EndEnergy: 1}}))

	forward := TotalsByProfiler(&ingest.Experiment{Trials: []*ingest.Trial{a, b, c}})
	backward := TotalsByProfiler(&ingest.Experiment{Trials: []*ingest.Trial{c, a, b}})
	if len(forward) != 1 || len(backward) != 1 {
		t.Fatalf("unexpected totals %+v %+v", forward, backward)
	}
	f, g := forward[0], backward[0]
	if math.Abs(f.Time.Mean-g.Time.Mean) > epsilon || math.Abs(f.Time.StdDev-g.Time.StdDev) > epsilon ||
		math.Abs(f.Energy.Mean-g.Energy.Mean) > epsilon || math.Abs(f.Energy.StdDev-g.Energy.StdDev) > epsilon {
		t.Fatalf("totals depend on trial order: %+v vs %+v", f, g)
	}
}

func TestTotalsByProfilerEmptyLogCountsAsZero(t *testing.T) {
	exp := &ingest.Experiment{Trials: []*ingest.Trial{
		trialWith("trial_0", heartbeat.NewLog("IDLE", []heartbeat.Interval{{StartTime: 0, EndTime: 10, StartEnergy: 0, EndEnergy: 4}})),
		trialWith("trial_1", heartbeat.NewLog("IDLE", nil)),
	}}
	totals := TotalsByProfiler(exp)
	if len(totals) != 1 || totals[0].Time.Samples != 2 || totals[0].Time.Mean != 5 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestPowerSeries(t *testing.T) {
	trial := trialWith("trial_0",
		heartbeat.NewLog("APPLICATION", []heartbeat.Interval{
			{StartTime: 0, EndTime: 1000, StartEnergy: 0, EndEnergy: 5},
			{StartTime: 1000, EndTime: 1000, StartEnergy: 5, EndEnergy: 5},
			{StartTime: 1000, EndTime: 3000, StartEnergy: 5, EndEnergy: 25},
		}),
	)

	got := PowerSeries(trial, "APPLICATION")
	want := []PowerPoint{{Time: 1000, Power: 5}, {Time: 3000, Power: 10}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected series %+v, want %+v", got, want)
	}

	if PowerSeries(trial, "GPU") != nil {
		t.Fatalf("missing profiler must yield no series")
	}
}

func TestSeriesBounds(t *testing.T) {
	exp := &ingest.Experiment{Trials: []*ingest.Trial{
		trialWith("trial_0",
			heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 1000, StartEnergy: 0, EndEnergy: 10}}),
			heartbeat.NewLog("GPU", []heartbeat.Interval{{StartTime: 0, EndTime: 5000, StartEnergy: 0, EndEnergy: 500}}),
		),
		trialWith("trial_1",
			heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 0, EndTime: 2000, StartEnergy: 0, EndEnergy: 10}}),
		),
	}}

	b := SeriesBounds(exp, "APPLICATION")
	if b.MaxTime != 5000 {
		t.Fatalf("unexpected max time %d", b.MaxTime)
	}
	if !almostEqual(b.MaxPower, 12) {
		t.Fatalf("unexpected max power %v", b.MaxPower)
	}
}

func TestNormalizeTotals(t *testing.T) {
	totals := []Totals{
		{Name: "A", Time: Statistic{Mean: 30, StdDev: 3, Samples: 2}, Energy: Statistic{Mean: 10, StdDev: 1, Samples: 2}},
		{Name: "B", Time: Statistic{Mean: 10, StdDev: 1, Samples: 2}, Energy: Statistic{Mean: 0, Samples: 2}},
	}

	got := NormalizeTotals(totals)
	if !almostEqual(got[0].Time.Mean, 0.75) || !almostEqual(got[0].Time.StdDev, 0.075) ||
		!almostEqual(got[1].Time.Mean, 0.25) {
		t.Fatalf("unexpected normalized time %+v", got)
	}
	if got[0].Energy.Mean != 1 || got[1].Energy.Mean != 0 || got[0].Energy.Samples != 2 {
		t.Fatalf("unexpected normalized energy %+v", got)
	}
	if totals[0].Time.Mean != 30 {
		t.Fatalf("input must not be modified")
	}

	zero := NormalizeTotals([]Totals{{Name: "A"}})
	if zero[0].Time.Mean != 0 || math.IsNaN(zero[0].Energy.Mean) {
		t.Fatalf("zero sums must normalize to zero, got %+v", zero)
	}
}

func TestCrossConfigurationTotals(t *testing.T) {
	configs := []ConfigSummaries{
		{ID: "fast", Records: []*summary.Record{
			{TimeSec: 10, EnergyUJ: 100, Success: true},
			{TimeSec: 12, EnergyUJ: 140, Success: true},
			{TimeSec: 1, EnergyUJ: 1, Success: false},
		}},
		{ID: "baseline", Records: []*summary.Record{
			{TimeSec: 20, EnergyUJ: 200, Success: true},
		}},
	}

	got := CrossConfigurationTotals(configs)
	if len(got) != 2 || got[0].Name != "baseline" || got[1].Name != "fast" {
		t.Fatalf("unexpected totals %+v", got)
	}
	fast := got[1]
	if fast.Time.Samples != 2 || !almostEqual(fast.Time.Mean, 11) || !almostEqual(fast.Time.StdDev, 1) {
		t.Fatalf("failed trials must be excluded, got %+v", fast.Time)
	}
	if !almostEqual(fast.Energy.Mean, 120) || !almostEqual(fast.Energy.StdDev, 20) {
		t.Fatalf("unexpected energy %+v", fast.Energy)
	}
	if got[0].Time.Mean != 20 || got[0].Time.StdDev != 0 {
		t.Fatalf("unexpected baseline %+v", got[0])
	}
}

func TestCrossConfigurationTotalsMergesSharedID(t *testing.T) {
	records := []*summary.Record{
		{TimeSec: 10, EnergyUJ: 100, Success: true},
		{TimeSec: 14, EnergyUJ: 300, Success: true},
	}
	configs := []ConfigSummaries{
		{ID: "a", Records: records},
		{ID: "b", Records: []*summary.Record{{TimeSec: 5, EnergyUJ: 50, Success: false}}},
		{ID: "a", Records: records},
	}

	got := CrossConfigurationTotals(configs)
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("unexpected totals %+v", got)
	}
	if got[0].Time.Samples != 4 || !almostEqual(got[0].Time.Mean, 12) || !almostEqual(got[0].Time.StdDev, 2) {
		t.Fatalf("unexpected merged time %+v", got[0].Time)
	}
	if !almostEqual(got[0].Energy.Mean, 200) || !almostEqual(got[0].Energy.StdDev, 100) {
		t.Fatalf("unexpected merged energy %+v", got[0].Energy)
	}
	if got[1].Time.Samples != 0 {
		t.Fatalf("configuration without successful trials must report no samples, got %+v", got[1])
	}
}
