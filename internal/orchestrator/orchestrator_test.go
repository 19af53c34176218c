package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/ingest"
	"CraneProfiler/internal/sampler"
	"CraneProfiler/internal/summary"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type fakeHandle struct{ terminated bool }

func (h *fakeHandle) Terminate() error {
	h.terminated = true
	return nil
}

// fakeSampler serves readings in order and records its lifecycle.
type fakeSampler struct {
	readings  []uint64
	launchErr error
	started   int
	stopped   int
	handles   []*fakeHandle
}

func (s *fakeSampler) Start(outputPath string) (sampler.Handle, error) {
	if s.launchErr != nil {
		return nil, &sampler.LaunchError{Source: "fake", Err: s.launchErr}
	}
	s.started++
	h := &fakeHandle{}
	s.handles = append(s.handles, h)
	return h, nil
}

func (s *fakeSampler) Poll(outputPath string) (uint64, error) {
	if len(s.readings) == 0 {
		return 0, &sampler.ReadError{Path: outputPath, Err: errors.New("empty energy file")}
	}
	v := s.readings[0]
	s.readings = s.readings[1:]
	return v, nil
}

func (s *fakeSampler) Stop(h sampler.Handle, outputPath string) {
	s.stopped++
	_ = h.Terminate()
}

// fakeRunner emulates a workload that emits heartbeat logs and takes
// duration to complete.
type fakeRunner struct {
	clock    *fakeClock
	duration time.Duration
	exitCode int
	err      error
	logs     []*heartbeat.Log
	commands []Command
}

func (r *fakeRunner) Run(ctx context.Context, cmd Command) (int, error) {
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return -1, r.err
	}
	dir := strings.TrimPrefix(cmd.Env[0], HeartbeatDirEnv+"=")
	for _, l := range r.logs {
		if _, err := heartbeat.WriteLog(dir, l); err != nil {
			return -1, err
		}
	}
	fmt.Fprintln(cmd.Stdout, "workload output")
	r.clock.now = r.clock.now.Add(r.duration)
	return r.exitCode, nil
}

type fakeSink struct {
	experiments []string
	records     []*summary.Record
}

func (s *fakeSink) SaveTrialSummary(ctx context.Context, experiment string, r *summary.Record) error {
	s.experiments = append(s.experiments, experiment)
	s.records = append(s.records, r)
	return nil
}

type fixture struct {
	opts    Options
	clock   *fakeClock
	sampler *fakeSampler
	runner  *fakeRunner
	sink    *fakeSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	return &fixture{
		opts: Options{
			Command:      "./bench",
			GuardTime:    20 * time.Second,
			HeartbeatDir: filepath.Join(root, "hb"),
			OutputDir:    filepath.Join(root, "heartbeat_logs"),
			Trials:       1,
			Platform:     "Linux-test",
		},
		clock:   clock,
		sampler: &fakeSampler{},
		runner: &fakeRunner{
			clock:    clock,
			duration: 2 * time.Second,
			logs: []*heartbeat.Log{
				heartbeat.NewLog("APPLICATION", []heartbeat.Interval{{StartTime: 100, EndTime: 200, StartEnergy: 50, EndEnergy: 80}}),
				heartbeat.NewLog("GPU", []heartbeat.Interval{{StartTime: 120, EndTime: 180, StartEnergy: 60, EndEnergy: 70}}),
			},
		},
		sink: &fakeSink{},
	}
}

func (f *fixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	if err := os.MkdirAll(f.opts.HeartbeatDir, 0755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(f.opts, f.sampler, WithClock(f.clock), WithRunner(f.runner), WithSink(f.sink))
}

func TestRunTrialSuccess(t *testing.T) {
	f := newFixture(t)
	f.sampler.readings = []uint64{1_000_000, 5_000_000}
	o := f.orchestrator(t)

	record, err := o.RunTrial(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.TimeSec != 2 || record.EnergyUJ != 4_000_000 || record.PowerW != 2 {
		t.Fatalf("unexpected record %+v", record)
	}
	if !record.Success || record.Trial != 1 || record.Platform != "Linux-test" || record.Command != "./bench" {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(f.clock.sleeps) != 2 || f.clock.sleeps[0] != 20*time.Second || f.clock.sleeps[1] != 20*time.Second {
		t.Fatalf("expected two guard sleeps, got %v", f.clock.sleeps)
	}
	if f.sampler.started != 1 || f.sampler.stopped != 1 || !f.sampler.handles[0].terminated {
		t.Fatalf("sampler must be started and stopped once")
	}

	dir := o.TrialDir(1)
	for _, name := range []string{"stdout.txt", "stderr.txt", summary.DefaultFileName,
		"heartbeat-APPLICATION.log", "heartbeat-GPU.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s in trial directory: %v", name, err)
		}
	}
	left, _ := filepath.Glob(filepath.Join(f.opts.HeartbeatDir, heartbeat.FileGlob))
	if len(left) != 0 {
		t.Fatalf("heartbeat logs must be moved out of the shared directory, found %v", left)
	}

	onDisk, err := summary.ReadFile(filepath.Join(dir, summary.DefaultFileName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if onDisk.EnergyUJ != 4_000_000 || !onDisk.Success {
		t.Fatalf("unexpected summary on disk %+v", onDisk)
	}

	if len(f.sink.records) != 1 || f.sink.experiments[0] != "heartbeat_logs" {
		t.Fatalf("successful trial must be published once, got %v", f.sink.experiments)
	}
}

func TestRunTrialEnergyIntegrity(t *testing.T) {
	f := newFixture(t)
	f.sampler.readings = []uint64{0, 0}
	o := f.orchestrator(t)

	record, err := o.RunTrial(context.Background(), 1)
	var ierr *EnergyIntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *EnergyIntegrityError, got %v", err)
	}
	if record == nil || record.Success || record.ExitCode != 0 || record.EnergyUJ != 0 {
		t.Fatalf("unexpected record %+v", record)
	}
	onDisk, err := summary.ReadFile(filepath.Join(o.TrialDir(1), summary.DefaultFileName))
	if err != nil {
		t.Fatalf("failed trials must still write a summary: %v", err)
	}
	if onDisk.Success {
		t.Fatalf("summary must record the failure")
	}
	if len(f.sink.records) != 0 {
		t.Fatalf("failed trials must not be published")
	}
}

func TestRunTrialWorkloadFailure(t *testing.T) {
	testCases := []struct {
		name     string
		exitCode int
		err      error
	}{
		{name: "non-zero exit", exitCode: 3},
		{name: "launch failure", err: errors.New("exec format error")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.sampler.readings = []uint64{10, 20}
			f.runner.exitCode = tc.exitCode
			f.runner.err = tc.err
			o := f.orchestrator(t)

			record, err := o.RunTrial(context.Background(), 1)
			var werr *WorkloadError
			if !errors.As(err, &werr) {
				t.Fatalf("expected *WorkloadError, got %v", err)
			}
			if record == nil || record.Success {
				t.Fatalf("unexpected record %+v", record)
			}
			if f.sampler.stopped != 1 || len(f.clock.sleeps) != 2 {
				t.Fatalf("end readings and trailing guard must still happen")
			}
		})
	}
}

func TestRunTrialFatalErrors(t *testing.T) {
	t.Run("sampler launch", func(t *testing.T) {
		f := newFixture(t)
		f.sampler.launchErr = errors.New("no such file")
		record, err := f.orchestrator(t).RunTrial(context.Background(), 1)
		var lerr *sampler.LaunchError
		if record != nil || !errors.As(err, &lerr) {
			t.Fatalf("expected launch error, got %v %+v", err, record)
		}
		if len(f.runner.commands) != 0 {
			t.Fatalf("workload must not run")
		}
	})

	t.Run("energy read", func(t *testing.T) {
		f := newFixture(t)
		f.sampler.readings = []uint64{10}
		record, err := f.orchestrator(t).RunTrial(context.Background(), 1)
		var rerr *sampler.ReadError
		if record != nil || !errors.As(err, &rerr) {
			t.Fatalf("expected read error, got %v %+v", err, record)
		}
		if f.sampler.stopped != 1 {
			t.Fatalf("sampler must be stopped on abort")
		}
	})

	t.Run("existing trial directory", func(t *testing.T) {
		f := newFixture(t)
		o := f.orchestrator(t)
		if err := os.MkdirAll(o.TrialDir(1), 0755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := o.RunTrial(context.Background(), 1)
		if !errors.Is(err, ErrTrialExists) {
			t.Fatalf("expected ErrTrialExists, got %v", err)
		}
		if f.sampler.started != 0 {
			t.Fatalf("sampler must not start")
		}
	})
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.opts.Trials = 3
	// Trial 1 succeeds, trial 2 reads a flat counter.
	f.sampler.readings = []uint64{100, 200, 300, 300, 400, 500}
	o := f.orchestrator(t)

	records, err := o.Run(context.Background())
	var ierr *EnergyIntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *EnergyIntegrityError, got %v", err)
	}
	if len(records) != 2 || !records[0].Success || records[1].Success {
		t.Fatalf("unexpected records %+v", records)
	}
	if _, err := os.Stat(o.TrialDir(3)); !os.IsNotExist(err) {
		t.Fatalf("trial 3 must not start")
	}
	if _, err := os.Stat(filepath.Join(o.TrialDir(1), summary.DefaultFileName)); err != nil {
		t.Fatalf("completed trials must be preserved: %v", err)
	}
}

func TestRunScopedLogsRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.opts.ScopedLogs = true
	f.opts.Trials = 2
	f.sampler.readings = []uint64{10, 20, 30, 45}
	o := f.orchestrator(t)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantDir, _ := filepath.Abs(o.TrialDir(2))
	if got := f.runner.commands[1].Env[0]; got != HeartbeatDirEnv+"="+wantDir {
		t.Fatalf("unexpected heartbeat env %q", got)
	}

	exp, err := ingest.LoadExperiment(f.opts.OutputDir, ingest.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exp.Trials) != 2 {
		t.Fatalf("expected 2 trials, got %d", len(exp.Trials))
	}
	second := exp.Trials[1]
	if second.Summary == nil || second.Summary.EnergyUJ != 15 || second.Summary.Trial != 2 {
		t.Fatalf("unexpected summary %+v", second.Summary)
	}
	if got := second.Log("GPU").Intervals[0]; got != (heartbeat.Interval{StartTime: 20, EndTime: 80, StartEnergy: 10, EndEnergy: 20}) {
		t.Fatalf("unexpected normalized GPU interval %+v", got)
	}
}

func TestSummaryBoundsLogTotals(t *testing.T) {
	testCases := []struct {
		name   string
		scoped bool
	}{
		{name: "shared heartbeat directory", scoped: false},
		{name: "scoped heartbeat directory", scoped: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts.ScopedLogs = tc.scoped
			f.opts.Trials = 2
			// Every logged span lies within the 2 s execution and the
			// counter advances by more than any profiler logs.
			f.sampler.readings = []uint64{1000, 1100, 2000, 2150}
			o := f.orchestrator(t)

			if _, err := o.Run(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			exp, err := ingest.LoadExperiment(f.opts.OutputDir, ingest.Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(exp.Trials) != 2 {
				t.Fatalf("expected 2 trials, got %d", len(exp.Trials))
			}
			for _, trial := range exp.Trials {
				if trial.Summary == nil {
					t.Fatalf("trial %s has no summary", trial.Name)
				}
				if len(trial.Logs) != 2 {
					t.Fatalf("trial %s: expected 2 logs, got %d", trial.Name, len(trial.Logs))
				}
				for _, l := range trial.Logs {
					if float64(l.TotalTime()) > trial.Summary.TimeSec*1e9 {
						t.Fatalf("trial %s: %s logs %d ns, more than the measured %v s",
							trial.Name, l.Profiler, l.TotalTime(), trial.Summary.TimeSec)
					}
					if l.TotalEnergy() > trial.Summary.EnergyUJ {
						t.Fatalf("trial %s: %s logs %d uJ, more than the measured %d uJ",
							trial.Name, l.Profiler, l.TotalEnergy(), trial.Summary.EnergyUJ)
					}
				}
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StateGuardAfter.String() != "GuardAfter" || State(42).String() != "State(42)" {
		t.Fatalf("unexpected state names")
	}
	if !StateFailure.Terminal() || StateCollected.Terminal() {
		t.Fatalf("unexpected terminal states")
	}
}
