package summary

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"time"
)

const DefaultFileName = "summary.txt"

// Keys of a summary record, in the order they are written.
const (
	KeyDatetime = "Datetime (UTC)"
	KeyPlatform = "Platform"
	KeyCommand  = "Command"
	KeyTrial    = "Trial"
	KeyTime     = "Time (sec)"
	KeyEnergy   = "Energy (uJ)"
	KeyPower    = "Power (W)"
	KeyExitCode = "Exit Code"
	KeyStatus   = "Status"
)

const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

// DatetimeLayout is ISO 8601 without a zone designator; the value is UTC.
const DatetimeLayout = "2006-01-02T15:04:05.000000"

// Record describes one whole trial: the command span measured by the
// orchestrator, not any single profiler.
type Record struct {
	Datetime time.Time `json:"datetime" yaml:"datetime"`
	Platform string    `json:"platform" yaml:"platform"`
	Command  string    `json:"command" yaml:"command"`
	Trial    int       `json:"trial" yaml:"trial"`
	TimeSec  float64   `json:"time_sec" yaml:"time_sec"`
	EnergyUJ uint64    `json:"energy_uj" yaml:"energy_uj"`
	PowerW   float64   `json:"power_w" yaml:"power_w"`
	ExitCode int       `json:"exit_code" yaml:"exit_code"`
	Success  bool      `json:"success" yaml:"success"`
}

// AveragePower returns energy over time in watts, or 0 for an empty span.
func AveragePower(energyUJ uint64, timeSec float64) float64 {
	if timeSec <= 0 {
		return 0
	}
	return float64(energyUJ) / 1e6 / timeSec
}

func (r *Record) status() string {
	if r.Success {
		return StatusSuccess
	}
	return StatusFailure
}

func (r *Record) Entries() [][2]string {
	return [][2]string{
		{KeyDatetime, r.Datetime.UTC().Format(DatetimeLayout)},
		{KeyPlatform, r.Platform},
		{KeyCommand, r.Command},
		{KeyTrial, strconv.Itoa(r.Trial)},
		{KeyTime, strconv.FormatFloat(r.TimeSec, 'f', -1, 64)},
		{KeyEnergy, strconv.FormatUint(r.EnergyUJ, 10)},
		{KeyPower, strconv.FormatFloat(r.PowerW, 'f', -1, 64)},
		{KeyExitCode, strconv.Itoa(r.ExitCode)},
		{KeyStatus, r.status()},
	}
}

func WriteFile(path string, r *Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range r.Entries() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", e[0], e[1]); err != nil {
			f.Close()
			return fmt.Errorf("failed to write summary file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write summary file: %w", err)
	}
	return f.Close()
}
