// Package ingest loads the heartbeat logs of trials and experiments and
// shifts every trial onto a common zero origin.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/summary"
)

var log = logrus.WithField("component", "Ingest")

const logGlob = "*" + heartbeat.FileSuffix

type Options struct {
	// Strict turns a malformed heartbeat log into an ingestion failure
	// instead of treating it as an empty log.
	Strict bool
	// SkipBadTrials drops trials without any heartbeat data from an
	// experiment instead of failing it.
	SkipBadTrials bool
	// SummaryFile is the name of the summary record inside a trial
	// directory. Defaults to summary.DefaultFileName.
	SummaryFile string
}

func (o Options) summaryFile() string {
	if o.SummaryFile == "" {
		return summary.DefaultFileName
	}
	return o.SummaryFile
}

// Trial is one execution of the workload. All logs share the same time and
// energy origin after ingestion.
type Trial struct {
	Name string
	Dir  string
	Logs []*heartbeat.Log
	// Summary is nil when the directory holds no summary record.
	Summary *summary.Record
}

func (t *Trial) Log(profiler string) *heartbeat.Log {
	for _, l := range t.Logs {
		if l.Profiler == profiler {
			return l
		}
	}
	return nil
}

func (t *Trial) Profilers() []string {
	names := make([]string, 0, len(t.Logs))
	for _, l := range t.Logs {
		names = append(names, l.Profiler)
	}
	return names
}

type Experiment struct {
	Name   string
	Dir    string
	Trials []*Trial
}

type EmptyTrialError struct {
	Dir string
}

func (e *EmptyTrialError) Error() string {
	return fmt.Sprintf("trial %s has no heartbeat data: every log is empty", e.Dir)
}

func IsEmptyTrial(err error) bool {
	var emptyErr *EmptyTrialError
	return errors.As(err, &emptyErr)
}

// LoadTrial parses every log in dir and rebases them. The time origin is the
// smallest start time and the energy origin the smallest start energy over
// all non-empty logs, each computed on its own.
func LoadTrial(dir string, opts Options) (*Trial, error) {
	paths, err := filepath.Glob(filepath.Join(dir, logGlob))
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeat logs in %s: %w", dir, err)
	}
	sort.Strings(paths)

	logs := make([]*heartbeat.Log, 0, len(paths))
	for _, path := range paths {
		l, err := heartbeat.ParseFile(path)
		if err != nil {
			if !heartbeat.IsParseError(err) {
				return nil, err
			}
			if opts.Strict {
				return nil, err
			}
			log.Warnf("Treating malformed heartbeat log as empty: %v", err)
		}
		logs = append(logs, l)
	}

	var (
		timeOrigin, energyOrigin uint64
		found                    bool
	)
	for _, l := range logs {
		minTime, minEnergy, ok := l.Origin()
		if !ok {
			continue
		}
		if !found {
			timeOrigin, energyOrigin, found = minTime, minEnergy, true
			continue
		}
		timeOrigin = min(timeOrigin, minTime)
		energyOrigin = min(energyOrigin, minEnergy)
	}
	if !found {
		return nil, &EmptyTrialError{Dir: dir}
	}

	trial := &Trial{
		Name: filepath.Base(dir),
		Dir:  dir,
		Logs: make([]*heartbeat.Log, len(logs)),
	}
	for i, l := range logs {
		trial.Logs[i] = l.Rebase(timeOrigin, energyOrigin)
	}
	sort.SliceStable(trial.Logs, func(i, j int) bool {
		return trial.Logs[i].Profiler < trial.Logs[j].Profiler
	})

	summaryPath := filepath.Join(dir, opts.summaryFile())
	if _, err := os.Stat(summaryPath); err == nil {
		record, err := summary.ReadFile(summaryPath)
		if err != nil {
			log.Warnf("Ignoring unreadable summary record: %v", err)
		} else {
			trial.Summary = record
		}
	}

	log.Debugf("Loaded trial %s: %d logs, time origin %d, energy origin %d",
		trial.Name, len(trial.Logs), timeOrigin, energyOrigin)
	return trial, nil
}

// LoadExperiment ingests every immediate subdirectory of dir as a trial,
// in name order.
func LoadExperiment(dir string, opts Options) (*Experiment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment directory: %w", err)
	}

	exp := &Experiment{
		Name: filepath.Base(filepath.Clean(dir)),
		Dir:  dir,
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		trial, err := LoadTrial(filepath.Join(dir, entry.Name()), opts)
		if err != nil {
			if opts.SkipBadTrials && IsEmptyTrial(err) {
				log.Warnf("Skipping trial %s: %v", entry.Name(), err)
				continue
			}
			return nil, fmt.Errorf("trial %s: %w", entry.Name(), err)
		}
		exp.Trials = append(exp.Trials, trial)
	}
	return exp, nil
}
