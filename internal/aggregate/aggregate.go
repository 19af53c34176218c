// Package aggregate reduces ingested trials to per-profiler totals,
// instantaneous power series and cross-configuration comparisons.
package aggregate

import (
	"math"
	"sort"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/ingest"
	"CraneProfiler/internal/summary"
)

// Statistic is the mean and population standard deviation of a sample.
type Statistic struct {
	Mean    float64 `json:"mean" yaml:"mean"`
	StdDev  float64 `json:"stddev" yaml:"stddev"`
	Samples int     `json:"samples" yaml:"samples"`
}

// Totals is the spread of total time and total energy for one profiler or
// configuration across trials.
type Totals struct {
	Name   string    `json:"name" yaml:"name"`
	Time   Statistic `json:"time" yaml:"time"`
	Energy Statistic `json:"energy" yaml:"energy"`
}

type PowerPoint struct {
	Time  uint64  `json:"time" yaml:"time"`
	Power float64 `json:"power" yaml:"power"`
}

// Bounds are axis limits shared by every chart of an experiment.
type Bounds struct {
	MaxTime  uint64  `json:"max_time" yaml:"max_time"`
	MaxPower float64 `json:"max_power" yaml:"max_power"`
}

// ConfigSummaries groups the summary records of one configuration.
type ConfigSummaries struct {
	ID      string
	Records []*summary.Record
}

const powerHeadroom = 1.2

// Stats computes mean and population standard deviation in two passes.
func Stats(values []float64) Statistic {
	n := len(values)
	if n == 0 {
		return Statistic{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return Statistic{
		Mean:    mean,
		StdDev:  math.Sqrt(sq / float64(n)),
		Samples: n,
	}
}

// TotalsByProfiler sums interval durations and energies per profiler in
// every trial and summarizes those sums across the trials the profiler
// appears in. An empty log counts as a zero total; a malformed one does not
// count at all. The result is sorted by profiler name.
func TotalsByProfiler(exp *ingest.Experiment) []Totals {
	times := make(map[string][]float64)
	energies := make(map[string][]float64)

	for _, trial := range exp.Trials {
		for _, l := range trial.Logs {
			if l.Status == heartbeat.StatusMalformed {
				continue
			}
			times[l.Profiler] = append(times[l.Profiler], float64(l.TotalTime()))
			energies[l.Profiler] = append(energies[l.Profiler], float64(l.TotalEnergy()))
		}
	}

	result := make([]Totals, 0, len(times))
	for name := range times {
		result = append(result, Totals{
			Name:   name,
			Time:   Stats(times[name]),
			Energy: Stats(energies[name]),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func intervalPower(iv heartbeat.Interval) float64 {
	return float64(iv.Energy()) / (float64(iv.Duration()) / 1000)
}

// PowerSeries derives one power value per interval of the named profiler,
// placed at the interval end time. Zero-length intervals have no defined
// power and are skipped. A trial without that profiler yields nil.
func PowerSeries(trial *ingest.Trial, profiler string) []PowerPoint {
	l := trial.Log(profiler)
	if l == nil {
		return nil
	}

	points := make([]PowerPoint, 0, len(l.Intervals))
	for _, iv := range l.Intervals {
		if iv.Duration() == 0 {
			continue
		}
		points = append(points, PowerPoint{Time: iv.EndTime, Power: intervalPower(iv)})
	}
	return points
}

// SeriesBounds returns the latest end time over all logs of all trials and
// the peak power of the named profiler scaled by a 20% headroom.
func SeriesBounds(exp *ingest.Experiment, profiler string) Bounds {
	var b Bounds
	for _, trial := range exp.Trials {
		for _, l := range trial.Logs {
			b.MaxTime = max(b.MaxTime, l.MaxEndTime())
		}
		for _, p := range PowerSeries(trial, profiler) {
			b.MaxPower = max(b.MaxPower, p.Power)
		}
	}
	b.MaxPower *= powerHeadroom
	return b
}

// NormalizeTotals expresses every mean and deviation as a fraction of the
// sum of means, separately for time and energy. Samples are preserved.
func NormalizeTotals(totals []Totals) []Totals {
	var timeSum, energySum float64
	for _, t := range totals {
		timeSum += t.Time.Mean
		energySum += t.Energy.Mean
	}

	result := make([]Totals, len(totals))
	for i, t := range totals {
		result[i] = Totals{
			Name:   t.Name,
			Time:   scale(t.Time, timeSum),
			Energy: scale(t.Energy, energySum),
		}
	}
	return result
}

func scale(s Statistic, total float64) Statistic {
	if total == 0 {
		return Statistic{Samples: s.Samples}
	}
	return Statistic{
		Mean:    s.Mean / total,
		StdDev:  s.StdDev / total,
		Samples: s.Samples,
	}
}

// CrossConfigurationTotals summarizes whole-trial time and energy per
// configuration. Entries sharing an ID are merged into one configuration.
// Records of failed trials are left out; a configuration with no successful
// trial reports zero samples. Sorted by ID.
func CrossConfigurationTotals(configs []ConfigSummaries) []Totals {
	var ids []string
	times := make(map[string][]float64)
	energies := make(map[string][]float64)

	for _, cfg := range configs {
		if _, seen := times[cfg.ID]; !seen {
			ids = append(ids, cfg.ID)
			times[cfg.ID] = []float64{}
		}
		for _, r := range cfg.Records {
			if r == nil || !r.Success {
				continue
			}
			times[cfg.ID] = append(times[cfg.ID], r.TimeSec)
			energies[cfg.ID] = append(energies[cfg.ID], float64(r.EnergyUJ))
		}
	}

	sort.Strings(ids)
	result := make([]Totals, 0, len(ids))
	for _, id := range ids {
		result = append(result, Totals{
			Name:   id,
			Time:   Stats(times[id]),
			Energy: Stats(energies[id]),
		})
	}
	return result
}
