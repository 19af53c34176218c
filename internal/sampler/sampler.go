// Package sampler wraps the cumulative energy counter the orchestrator
// reads before and after a workload. Every implementation exposes the
// counter through a file holding one non-negative integer in microjoules.
package sampler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"CraneProfiler/internal/config"
	"CraneProfiler/internal/util"
)

var log = logrus.WithField("component", "Sampler")

// Handle identifies a running energy source.
type Handle interface {
	Terminate() error
}

type Sampler interface {
	// Start launches the energy source writing to outputPath. It does not
	// wait for the first reading to appear.
	Start(outputPath string) (Handle, error)
	// Poll returns the most recent cumulative energy reading.
	Poll(outputPath string) (uint64, error)
	// Stop terminates the source and removes outputPath. It never fails;
	// problems are logged.
	Stop(h Handle, outputPath string)
}

type LaunchError struct {
	Source string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch energy sampler %s: %v", e.Source, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read energy from %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ReadEnergy parses the counter file. Missing, empty or non-numeric content
// is a *ReadError.
func ReadEnergy(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &ReadError{Path: path, Err: err}
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0, &ReadError{Path: path, Err: fmt.Errorf("empty energy file")}
	}
	value, err := strconv.ParseUint(content, 10, 64)
	if err != nil {
		return 0, &ReadError{Path: path, Err: fmt.Errorf("invalid energy value %q", content)}
	}
	return value, nil
}

func stop(h Handle, outputPath string) {
	if h != nil {
		if err := h.Terminate(); err != nil {
			log.Warnf("Failed to terminate energy sampler: %v", err)
		}
	}
	util.RemoveFileIfExists(outputPath)
}

func New(cfg config.SamplerConfig) (Sampler, error) {
	switch cfg.Type {
	case config.SamplerExec, "":
		return &ExecSampler{Binary: cfg.Binary, Args: cfg.Args}, nil
	case config.SamplerRAPL:
		return &RAPLSampler{BasePath: cfg.RAPL.BasePath, Interval: cfg.RAPL.Interval}, nil
	default:
		return nil, fmt.Errorf("unsupported sampler type: %s", cfg.Type)
	}
}
