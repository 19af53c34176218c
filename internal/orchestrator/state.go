package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/sampler"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"
)

type State int

const (
	StateIdle State = iota
	StateSamplerStarted
	StateGuardBefore
	StateRunning
	StateGuardAfter
	StateCollected
	StateSuccess
	StateFailure
)

var stateNames = map[State]string{
	StateIdle:           "Idle",
	StateSamplerStarted: "SamplerStarted",
	StateGuardBefore:    "GuardBefore",
	StateRunning:        "Running",
	StateGuardAfter:     "GuardAfter",
	StateCollected:      "Collected",
	StateSuccess:        "Success",
	StateFailure:        "Failure",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

type trial struct {
	n           int
	dir         string
	state       State
	samplerPath string
	handle      sampler.Handle

	timeStart   time.Time
	timeEnd     time.Time
	energyStart uint64
	energyEnd   uint64
	exitCode    int

	// failure collects every reason the trial cannot succeed.
	failure error
	record  *summary.Record
}

func (t *trial) fail(err error) {
	t.failure = errors.Join(t.failure, err)
}

// Idle -> SamplerStarted
func (o *Orchestrator) startSampler(t *trial) (State, error) {
	if _, err := os.Stat(t.dir); err == nil {
		return t.state, fmt.Errorf("%w: %s", ErrTrialExists, t.dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return t.state, fmt.Errorf("failed to check trial directory: %w", err)
	}
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return t.state, fmt.Errorf("failed to create trial directory: %w", err)
	}

	if !o.opts.ScopedLogs {
		if stale := o.heartbeatLogs(); len(stale) > 0 {
			log.Warnf("Trial %d: %d heartbeat logs already present in %s will be collected into this trial",
				t.n, len(stale), o.opts.HeartbeatDir)
		}
	}

	handle, err := o.sampler.Start(t.samplerPath)
	if err != nil {
		return t.state, err
	}
	t.handle = handle
	return StateSamplerStarted, nil
}

// SamplerStarted -> GuardBefore
func (o *Orchestrator) guardBefore(ctx context.Context, t *trial) (State, error) {
	log.Infof("Trial %d: idling %v before execution", t.n, o.opts.GuardTime)
	if err := o.clock.Sleep(ctx, o.opts.GuardTime); err != nil {
		return t.state, err
	}
	return StateGuardBefore, nil
}

// GuardBefore -> Running. A workload failure is recorded, not returned; the
// end readings are still taken.
func (o *Orchestrator) execute(ctx context.Context, t *trial) (State, error) {
	stdout, err := os.Create(filepath.Join(t.dir, o.opts.StdoutFile))
	if err != nil {
		return t.state, fmt.Errorf("failed to create stdout file: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(filepath.Join(t.dir, o.opts.StderrFile))
	if err != nil {
		return t.state, fmt.Errorf("failed to create stderr file: %w", err)
	}
	defer stderr.Close()

	t.timeStart = o.clock.Now()
	if t.energyStart, err = o.sampler.Poll(t.samplerPath); err != nil {
		return t.state, err
	}

	log.Infof("Trial %d: executing %s", t.n, o.opts.Command)
	exitCode, err := o.runner.Run(ctx, Command{
		Line:   o.opts.Command,
		Env:    []string{HeartbeatDirEnv + "=" + o.logDir(t)},
		Stdout: stdout,
		Stderr: stderr,
	})
	t.exitCode = exitCode
	if err != nil || exitCode != 0 {
		werr := &WorkloadError{Command: o.opts.Command, ExitCode: exitCode, Err: err}
		log.Warnf("Trial %d: %v", t.n, werr)
		t.fail(werr)
	}
	return StateRunning, nil
}

// Running -> GuardAfter
func (o *Orchestrator) guardAfter(ctx context.Context, t *trial) (State, error) {
	var err error
	t.timeEnd = o.clock.Now()
	if t.energyEnd, err = o.sampler.Poll(t.samplerPath); err != nil {
		return t.state, err
	}
	o.sampler.Stop(t.handle, t.samplerPath)
	t.handle = nil

	log.Infof("Trial %d: idling %v after execution", t.n, o.opts.GuardTime)
	if err := o.clock.Sleep(ctx, o.opts.GuardTime); err != nil {
		return t.state, err
	}
	return StateGuardAfter, nil
}

// GuardAfter -> Collected
func (o *Orchestrator) collect(t *trial) (State, error) {
	if o.opts.ScopedLogs {
		return StateCollected, nil
	}

	for _, path := range o.heartbeatLogs() {
		dst, err := util.MoveFile(path, t.dir)
		if err != nil {
			return t.state, fmt.Errorf("failed to collect heartbeat log: %w", err)
		}
		log.Debugf("Trial %d: collected %s", t.n, dst)
	}
	return StateCollected, nil
}

// Collected -> Success | Failure
func (o *Orchestrator) finish(ctx context.Context, t *trial) (State, error) {
	if t.energyEnd <= t.energyStart {
		ierr := &EnergyIntegrityError{Start: t.energyStart, End: t.energyEnd}
		log.Errorf("Trial %d: %v", t.n, ierr)
		t.fail(ierr)
	}

	var energy uint64
	if t.energyEnd > t.energyStart {
		energy = t.energyEnd - t.energyStart
	}
	latency := t.timeEnd.Sub(t.timeStart).Seconds()

	t.record = &summary.Record{
		Datetime: o.clock.Now().UTC(),
		Platform: o.opts.Platform,
		Command:  o.opts.Command,
		Trial:    t.n,
		TimeSec:  latency,
		EnergyUJ: energy,
		PowerW:   summary.AveragePower(energy, latency),
		ExitCode: t.exitCode,
		Success:  t.failure == nil,
	}
	if err := summary.WriteFile(filepath.Join(t.dir, o.opts.SummaryFile), t.record); err != nil {
		return t.state, err
	}

	if t.failure != nil {
		return StateFailure, nil
	}

	log.Infof("Trial %d: %.3f s, %d uJ, %.3f W", t.n, latency, energy, t.record.PowerW)
	if o.sink != nil {
		if err := o.sink.SaveTrialSummary(ctx, o.experimentName(), t.record); err != nil {
			log.Warnf("Trial %d: failed to publish summary: %v", t.n, err)
		}
	}
	return StateSuccess, nil
}

// logDir is the directory exported to the workload. Relative paths are
// resolved so the workload may change its working directory.
func (o *Orchestrator) logDir(t *trial) string {
	dir := o.opts.HeartbeatDir
	if o.opts.ScopedLogs {
		dir = t.dir
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func (o *Orchestrator) heartbeatLogs() []string {
	matches, err := filepath.Glob(filepath.Join(o.opts.HeartbeatDir, heartbeat.FileGlob))
	if err != nil {
		log.Warnf("Failed to list heartbeat logs in %s: %v", o.opts.HeartbeatDir, err)
		return nil
	}

	var logs []string
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		logs = append(logs, path)
	}
	return logs
}
