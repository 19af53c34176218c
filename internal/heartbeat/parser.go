package heartbeat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	logrus "github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "Heartbeat")

// Column layout of a heartbeat log row, zero-indexed.
const (
	colBeat        = 0
	colTag         = 1
	colWork        = 2
	colStartTime   = 7
	colEndTime     = 8
	colStartEnergy = 14
	colEndEnergy   = 15

	MinColumns = colEndEnergy + 1
)

var Header = []string{
	"HB", "Tag", "Work", "Accuracy",
	"Global_Perf", "Window_Perf", "Instant_Perf",
	"Start_Time", "End_Time",
	"Global_Acc", "Window_Acc", "Instant_Acc",
	"Global_Pwr", "Window_Pwr",
	"Start_Energy", "End_Energy",
	"Instant_Pwr",
}

const maxLineSize = 1024 * 1024

// Row is the subset of a heartbeat log row this tool understands. Beat, Tag
// and Work are zero when their columns do not hold unsigned integers.
type Row struct {
	Beat        uint64
	Tag         uint64
	Work        uint64
	StartTime   uint64
	EndTime     uint64
	StartEnergy uint64
	EndEnergy   uint64
}

func (r Row) Interval() Interval {
	return Interval{
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		StartEnergy: r.StartEnergy,
		EndEnergy:   r.EndEnergy,
	}
}

type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed heartbeat log %s, line %d: %s", e.Path, e.Line, e.Reason)
}

// ParseRow decodes one whitespace-separated data row.
func ParseRow(line string) (Row, error) {
	fields := strings.Fields(line)
	if len(fields) < MinColumns {
		return Row{}, fmt.Errorf("expected at least %d columns, got %d", MinColumns, len(fields))
	}

	var row Row
	// Descriptive columns are informational and never reject a row.
	row.Beat, _ = strconv.ParseUint(fields[colBeat], 10, 64)
	row.Tag, _ = strconv.ParseUint(fields[colTag], 10, 64)
	row.Work, _ = strconv.ParseUint(fields[colWork], 10, 64)

	targets := []struct {
		col  int
		name string
		dst  *uint64
	}{
		{colStartTime, "Start_Time", &row.StartTime},
		{colEndTime, "End_Time", &row.EndTime},
		{colStartEnergy, "Start_Energy", &row.StartEnergy},
		{colEndEnergy, "End_Energy", &row.EndEnergy},
	}
	for _, t := range targets {
		v, err := strconv.ParseUint(fields[t.col], 10, 64)
		if err != nil {
			return Row{}, fmt.Errorf("column %s: %q is not an unsigned integer", t.name, fields[t.col])
		}
		*t.dst = v
	}

	if row.EndTime < row.StartTime {
		return Row{}, fmt.Errorf("end time %d before start time %d", row.EndTime, row.StartTime)
	}
	if row.EndEnergy < row.StartEnergy {
		return Row{}, fmt.Errorf("end energy %d below start energy %d", row.EndEnergy, row.StartEnergy)
	}
	return row, nil
}

// Parse reads a heartbeat log from r. The first line is a header. A log
// with no data rows is returned with StatusEmpty. If any row is malformed
// the returned log carries no intervals, StatusMalformed and the same
// *ParseError that is returned as error.
func Parse(r io.Reader, path string) (*Log, error) {
	name, ok := ProfilerName(path)
	if !ok {
		log.Warnf("Heartbeat log %s does not follow the %s naming convention, using profiler name %q",
			path, FileGlob, name)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var intervals []Interval
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := ParseRow(line)
		if err != nil {
			return malformed(name, path, &ParseError{Path: path, Line: lineNo, Reason: err.Error()})
		}
		intervals = append(intervals, row.Interval())
	}
	if err := scanner.Err(); err != nil {
		return malformed(name, path, &ParseError{Path: path, Line: lineNo + 1, Reason: err.Error()})
	}

	l := NewLog(name, intervals)
	l.Path = path
	return l, nil
}

func ParseFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open heartbeat log: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

func malformed(name string, path string, perr *ParseError) (*Log, error) {
	return &Log{
		Profiler: name,
		Path:     path,
		Status:   StatusMalformed,
		Err:      perr,
	}, perr
}

func IsParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}
