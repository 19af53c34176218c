// Package orchestrator runs a workload under energy measurement, one trial
// at a time, and leaves behind a directory per trial with the collected
// heartbeat logs and a summary record.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"CraneProfiler/internal/config"
	"CraneProfiler/internal/sampler"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"
)

var log = logrus.WithField("component", "Orchestrator")

// HeartbeatDirEnv tells the workload where to write its heartbeat logs.
const HeartbeatDirEnv = "HEARTBEAT_LOG_DIR"

const TrialDirPrefix = "trial_"

type Options struct {
	Command      string
	GuardTime    time.Duration
	HeartbeatDir string
	OutputDir    string
	SummaryFile  string
	StdoutFile   string
	StderrFile   string
	SamplerFile  string
	Trials       int
	// ScopedLogs points the workload at the trial directory itself, so
	// no collection step is needed.
	ScopedLogs bool
	Platform   string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Command:      cfg.Profile.Command,
		GuardTime:    cfg.Profile.GuardTime,
		HeartbeatDir: cfg.Profile.HeartbeatDir,
		OutputDir:    cfg.Profile.OutputDir,
		SummaryFile:  cfg.Profile.SummaryFile,
		StdoutFile:   cfg.Profile.StdoutFile,
		StderrFile:   cfg.Profile.StderrFile,
		SamplerFile:  cfg.Sampler.OutputFile,
		Trials:       cfg.Profile.Trials,
		ScopedLogs:   cfg.Profile.ScopedLogs,
	}
}

// ResultSink receives the summary record of every successful trial.
type ResultSink interface {
	SaveTrialSummary(ctx context.Context, experiment string, r *summary.Record) error
}

type Orchestrator struct {
	opts    Options
	sampler sampler.Sampler
	clock   Clock
	runner  Runner
	sink    ResultSink
}

type Option func(*Orchestrator)

func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithRunner(r Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

func WithSink(s ResultSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func New(opts Options, s sampler.Sampler, options ...Option) *Orchestrator {
	if opts.SummaryFile == "" {
		opts.SummaryFile = summary.DefaultFileName
	}
	if opts.StdoutFile == "" {
		opts.StdoutFile = "stdout.txt"
	}
	if opts.StderrFile == "" {
		opts.StderrFile = "stderr.txt"
	}
	if opts.SamplerFile == "" {
		opts.SamplerFile = "energymon.txt"
	}
	if opts.HeartbeatDir == "" {
		opts.HeartbeatDir = "."
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Trials <= 0 {
		opts.Trials = 1
	}
	if opts.Platform == "" {
		opts.Platform = util.Platform()
	}

	o := &Orchestrator{
		opts:    opts,
		sampler: s,
		clock:   wallClock{},
		runner:  ShellRunner{},
	}
	for _, option := range options {
		option(o)
	}
	return o
}

func (o *Orchestrator) TrialDir(n int) string {
	return filepath.Join(o.opts.OutputDir, TrialDirPrefix+strconv.Itoa(n))
}

// Run executes the configured number of trials, numbered from 1, and stops
// at the first trial that does not succeed. Records of the trials that
// reached a terminal state are returned in both cases.
func (o *Orchestrator) Run(ctx context.Context) ([]*summary.Record, error) {
	var records []*summary.Record
	for n := 1; n <= o.opts.Trials; n++ {
		record, err := o.RunTrial(ctx, n)
		if record != nil {
			records = append(records, record)
		}
		if err != nil {
			return records, fmt.Errorf("trial %d: %w", n, err)
		}
	}
	return records, nil
}

// RunTrial drives one trial through its states. A fatal error returns a nil
// record. A trial that reached the terminal Failure state returns its
// record together with the reason it failed.
func (o *Orchestrator) RunTrial(ctx context.Context, n int) (*summary.Record, error) {
	t := &trial{
		n:           n,
		dir:         o.TrialDir(n),
		state:       StateIdle,
		samplerPath: filepath.Join(o.TrialDir(n), o.opts.SamplerFile),
	}

	for !t.state.Terminal() {
		next, err := o.step(ctx, t)
		if err != nil {
			o.abort(t)
			log.Errorf("Trial %d aborted in state %s", n, t.state)
			return nil, err
		}
		log.Tracef("Trial %d: %s -> %s", n, t.state, next)
		t.state = next
	}

	if t.state == StateFailure {
		return t.record, t.failure
	}
	return t.record, nil
}

func (o *Orchestrator) step(ctx context.Context, t *trial) (State, error) {
	switch t.state {
	case StateIdle:
		return o.startSampler(t)
	case StateSamplerStarted:
		return o.guardBefore(ctx, t)
	case StateGuardBefore:
		return o.execute(ctx, t)
	case StateRunning:
		return o.guardAfter(ctx, t)
	case StateGuardAfter:
		return o.collect(t)
	case StateCollected:
		return o.finish(ctx, t)
	default:
		return t.state, fmt.Errorf("invalid trial state %s", t.state)
	}
}

// abort releases the sampler when a fatal error interrupts a trial.
func (o *Orchestrator) abort(t *trial) {
	if t.handle != nil {
		o.sampler.Stop(t.handle, t.samplerPath)
		t.handle = nil
	}
}

func (o *Orchestrator) experimentName() string {
	abs, err := filepath.Abs(o.opts.OutputDir)
	if err != nil {
		return filepath.Base(o.opts.OutputDir)
	}
	return filepath.Base(abs)
}
