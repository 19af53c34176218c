package heartbeat

import (
	"path/filepath"
	"strings"
)

const (
	FilePrefix = "heartbeat-"
	FileSuffix = ".log"
	FileGlob   = FilePrefix + "*" + FileSuffix
)

// Interval is one heartbeat: a span of time in nanoseconds and the
// cumulative energy readings in microjoules taken at its two ends.
type Interval struct {
	StartTime   uint64 `json:"start_time" yaml:"start_time"`
	EndTime     uint64 `json:"end_time" yaml:"end_time"`
	StartEnergy uint64 `json:"start_energy" yaml:"start_energy"`
	EndEnergy   uint64 `json:"end_energy" yaml:"end_energy"`
}

func (i Interval) Duration() uint64 {
	return i.EndTime - i.StartTime
}

func (i Interval) Energy() uint64 {
	return i.EndEnergy - i.StartEnergy
}

type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Log is the sequence of heartbeats one profiler emitted during one trial.
// Intervals may overlap and the sequence may be empty.
type Log struct {
	Profiler  string
	Path      string
	Intervals []Interval
	Status    Status
	// Err is set when Status is StatusMalformed.
	Err error
}

func NewLog(profiler string, intervals []Interval) *Log {
	l := &Log{
		Profiler:  profiler,
		Intervals: intervals,
		Status:    StatusOK,
	}
	if len(intervals) == 0 {
		l.Status = StatusEmpty
	}
	return l
}

func (l *Log) IsEmpty() bool {
	return len(l.Intervals) == 0
}

// Origin returns the smallest start time and the smallest start energy of
// the log. The two minimums may come from different intervals.
func (l *Log) Origin() (minTime uint64, minEnergy uint64, ok bool) {
	if l.IsEmpty() {
		return 0, 0, false
	}
	minTime, minEnergy = l.Intervals[0].StartTime, l.Intervals[0].StartEnergy
	for _, iv := range l.Intervals[1:] {
		minTime = min(minTime, iv.StartTime)
		minEnergy = min(minEnergy, iv.StartEnergy)
	}
	return minTime, minEnergy, true
}

func (l *Log) MaxEndTime() uint64 {
	var m uint64
	for _, iv := range l.Intervals {
		m = max(m, iv.EndTime)
	}
	return m
}

func (l *Log) TotalTime() uint64 {
	var total uint64
	for _, iv := range l.Intervals {
		total += iv.Duration()
	}
	return total
}

func (l *Log) TotalEnergy() uint64 {
	var total uint64
	for _, iv := range l.Intervals {
		total += iv.Energy()
	}
	return total
}

// Rebase returns a copy of the log with timeOrigin subtracted from both
// times and energyOrigin from both energies of every interval. The caller
// guarantees the origins do not exceed any start value.
func (l *Log) Rebase(timeOrigin uint64, energyOrigin uint64) *Log {
	rebased := &Log{
		Profiler:  l.Profiler,
		Path:      l.Path,
		Intervals: make([]Interval, len(l.Intervals)),
		Status:    l.Status,
		Err:       l.Err,
	}
	for i, iv := range l.Intervals {
		rebased.Intervals[i] = Interval{
			StartTime:   iv.StartTime - timeOrigin,
			EndTime:     iv.EndTime - timeOrigin,
			StartEnergy: iv.StartEnergy - energyOrigin,
			EndEnergy:   iv.EndEnergy - energyOrigin,
		}
	}
	return rebased
}

// ProfilerName extracts <name> from a "heartbeat-<name>.log" path. For files
// that do not follow the convention it returns the base name without its
// extension and ok=false.
func ProfilerName(path string) (name string, ok bool) {
	base := filepath.Base(path)
	trimmed := strings.TrimSuffix(base, FileSuffix)
	if name, found := strings.CutPrefix(trimmed, FilePrefix); found && name != "" && trimmed != base {
		return name, true
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), false
}

func FileName(profiler string) string {
	return FilePrefix + profiler + FileSuffix
}
