package orchestrator

import (
	"errors"
	"fmt"
)

var ErrTrialExists = errors.New("trial directory already exists")

// EnergyIntegrityError reports a non-positive energy delta over the
// workload, which means the sampler is not producing readings.
type EnergyIntegrityError struct {
	Start uint64
	End   uint64
}

func (e *EnergyIntegrityError) Error() string {
	return fmt.Sprintf("energy reader failure: energy did not increase during execution (start %d uJ, end %d uJ)",
		e.Start, e.End)
}

type WorkloadError struct {
	Command  string
	ExitCode int
	// Err is set when the command could not be launched at all.
	Err error
}

func (e *WorkloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to execute %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
}

func (e *WorkloadError) Unwrap() error { return e.Err }
