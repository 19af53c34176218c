package sampler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPowercapPath = "/sys/class/powercap"
	DefaultRAPLInterval = 100 * time.Millisecond

	raplPrefix = "intel-rapl:"
)

// RAPLSampler reads the package counters of the Linux powercap interface
// in-process. A background goroutine publishes their running sum to the
// output file so readers see the same contract as with ExecSampler.
type RAPLSampler struct {
	BasePath string
	Interval time.Duration
}

type raplDomain struct {
	Name           string
	Path           string
	MaxEnergyRange uint64
	last           uint64
}

type raplHandle struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *RAPLSampler) basePath() string {
	if s.BasePath == "" {
		return DefaultPowercapPath
	}
	return s.BasePath
}

func (s *RAPLSampler) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultRAPLInterval
	}
	return s.Interval
}

// discoverDomains returns the top level package domains only; subzones
// (core, uncore, dram) are already included in their package counter.
func (s *RAPLSampler) discoverDomains() ([]*raplDomain, error) {
	basePath := s.basePath()
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, err
	}

	var domains []*raplDomain
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, raplPrefix) || strings.Count(name, ":") != 1 {
			continue
		}
		domain := &raplDomain{
			Name: name,
			Path: filepath.Join(basePath, name),
		}
		if maxRange, err := readCounter(filepath.Join(domain.Path, "max_energy_range_uj")); err == nil {
			domain.MaxEnergyRange = maxRange
		}
		domains = append(domains, domain)
	}
	if len(domains) == 0 {
		return nil, fmt.Errorf("no RAPL package domains under %s", basePath)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Name < domains[j].Name })

	for _, d := range domains {
		log.Debugf("Discovered RAPL domain %s: %s", d.Name, d.Path)
	}
	return domains, nil
}

func (s *RAPLSampler) Start(outputPath string) (Handle, error) {
	domains, err := s.discoverDomains()
	if err != nil {
		return nil, &LaunchError{Source: "rapl", Err: err}
	}

	var total uint64
	for _, d := range domains {
		value, err := readCounter(filepath.Join(d.Path, "energy_uj"))
		if err != nil {
			return nil, &LaunchError{Source: "rapl", Err: fmt.Errorf("domain %s: %w", d.Name, err)}
		}
		d.last = value
		total += value
	}
	// The first reading must be visible before Start returns.
	if err := writeCounter(outputPath, total); err != nil {
		return nil, &LaunchError{Source: "rapl", Err: err}
	}

	h := &raplHandle{stopCh: make(chan struct{})}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		s.publish(domains, total, outputPath, h.stopCh)
	}()
	return h, nil
}

// publish accumulates counter deltas, compensating for wraparound at
// max_energy_range_uj, and rewrites outputPath after every sample.
func (s *RAPLSampler) publish(domains []*raplDomain, total uint64, outputPath string, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			for _, d := range domains {
				value, err := readCounter(filepath.Join(d.Path, "energy_uj"))
				if err != nil {
					log.Errorf("Error reading energy for domain %s: %v", d.Name, err)
					continue
				}
				total += counterDelta(d.last, value, d.MaxEnergyRange)
				d.last = value
			}
			if err := writeCounter(outputPath, total); err != nil {
				log.Errorf("Failed to write energy file %s: %v", outputPath, err)
			}
		}
	}
}

func (s *RAPLSampler) Poll(outputPath string) (uint64, error) {
	return ReadEnergy(outputPath)
}

func (s *RAPLSampler) Stop(h Handle, outputPath string) {
	stop(h, outputPath)
}

func (h *raplHandle) Terminate() error {
	h.once.Do(func() { close(h.stopCh) })
	h.wg.Wait()
	return nil
}

func counterDelta(prev uint64, cur uint64, maxRange uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	if maxRange == 0 || prev > maxRange {
		return cur
	}
	return maxRange - prev + cur
}

func readCounter(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

// writeCounter replaces path atomically so a concurrent Poll never sees a
// partially written value.
func writeCounter(path string, value uint64) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(value, 10)+"\n"), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
