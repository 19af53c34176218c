/**
 * Copyright (c) 2024 Peking University and Peking University
 * Changsha Institute for Computing and Digital Economy
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cprofile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"CraneProfiler/internal/aggregate"
	"CraneProfiler/internal/config"
	"CraneProfiler/internal/db"
	"CraneProfiler/internal/ingest"
	"CraneProfiler/internal/util"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type TrialSeries struct {
	Trial  string                 `json:"trial" yaml:"trial"`
	Points []aggregate.PowerPoint `json:"points" yaml:"points"`
}

type AnalyzeReport struct {
	Experiment    string             `json:"experiment" yaml:"experiment"`
	Trials        int                `json:"trials" yaml:"trials"`
	PowerProfiler string             `json:"power_profiler" yaml:"power_profiler"`
	Normalized    bool               `json:"normalized" yaml:"normalized"`
	Totals        []aggregate.Totals `json:"totals" yaml:"totals"`
	Bounds        aggregate.Bounds   `json:"bounds" yaml:"bounds"`
	Series        []TrialSeries      `json:"series" yaml:"series"`
}

func buildAnalyzeReport(exp *ingest.Experiment, profiler string, normalize bool) *AnalyzeReport {
	totals := aggregate.TotalsByProfiler(exp)
	if normalize {
		totals = aggregate.NormalizeTotals(totals)
	}

	report := &AnalyzeReport{
		Experiment:    exp.Name,
		Trials:        len(exp.Trials),
		PowerProfiler: profiler,
		Normalized:    normalize,
		Totals:        totals,
		Bounds:        aggregate.SeriesBounds(exp, profiler),
	}
	for _, trial := range exp.Trials {
		points := aggregate.PowerSeries(trial, profiler)
		if points == nil {
			log.Debugf("Trial %s has no %s log", trial.Name, profiler)
			points = []aggregate.PowerPoint{}
		}
		report.Series = append(report.Series, TrialSeries{Trial: trial.Name, Points: points})
	}
	return report
}

func executeAnalyze(cmd *cobra.Command) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	exp, err := ingest.LoadExperiment(cfg.Analyze.Directory, ingest.Options{
		Strict:        cfg.Analyze.Strict,
		SkipBadTrials: cfg.Analyze.SkipBadTrials,
		SummaryFile:   cfg.Profile.SummaryFile,
	})
	if err != nil {
		return toCraneError(err)
	}
	if len(exp.Trials) == 0 {
		return util.NewCraneErr(util.ErrorEmptyTrial,
			fmt.Sprintf("No trials with heartbeat data found in %s.", cfg.Analyze.Directory))
	}

	report := buildAnalyzeReport(exp, cfg.Analyze.PowerProfiler, FlagNormalize)

	if FlagReportDir != "" {
		if err := writeReportFiles(FlagReportDir, format, report); err != nil {
			return util.WrapCraneErr(util.ErrorIO, "Failed to write report files: %v", err)
		}
	}

	if FlagPublish {
		if err := publishSeries(cmd.Context(), exp, report); err != nil {
			return err
		}
	}

	if format != formatTable {
		return encode(os.Stdout, format, report)
	}
	printAnalyzeTables(report)
	return nil
}

// writeReportFiles writes raw_totals.<ext> and one ts_<trial>.<ext> per trial.
func writeReportFiles(dir string, format string, report *AnalyzeReport) error {
	if format == formatTable {
		format = formatJSON
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	totals := struct {
		Experiment string             `json:"experiment" yaml:"experiment"`
		Normalized bool               `json:"normalized" yaml:"normalized"`
		Totals     []aggregate.Totals `json:"totals" yaml:"totals"`
	}{report.Experiment, report.Normalized, report.Totals}
	if err := writeDocument(filepath.Join(dir, "raw_totals."+format), format, totals); err != nil {
		return err
	}

	for _, s := range report.Series {
		doc := struct {
			Trial    string                 `json:"trial" yaml:"trial"`
			Profiler string                 `json:"profiler" yaml:"profiler"`
			Bounds   aggregate.Bounds       `json:"bounds" yaml:"bounds"`
			Points   []aggregate.PowerPoint `json:"points" yaml:"points"`
		}{s.Trial, report.PowerProfiler, report.Bounds, s.Points}
		if err := writeDocument(filepath.Join(dir, "ts_"+s.Trial+"."+format), format, doc); err != nil {
			return err
		}
	}
	log.Infof("Report files written to %s", dir)
	return nil
}

func publishSeries(ctx context.Context, exp *ingest.Experiment, report *AnalyzeReport) error {
	if cfg.DB.Type == config.DBNone {
		log.Warn("--publish given but no database is configured, skipping")
		return nil
	}

	sink, err := db.NewDatabase(cfg.DB)
	if err != nil {
		return util.WrapCraneErr(util.ErrorBackend, "Failed to connect to result database: %v", err)
	}
	defer sink.Close()

	for i, trial := range exp.Trials {
		base := time.Now()
		if trial.Summary != nil && !trial.Summary.Datetime.IsZero() {
			base = trial.Summary.Datetime
		}
		err := sink.SavePowerSeries(ctx, exp.Name, trial.Name, report.PowerProfiler, base, report.Series[i].Points)
		if err != nil {
			return util.WrapCraneErr(util.ErrorBackend, "Failed to publish power series: %v", err)
		}
	}
	return nil
}

func printAnalyzeTables(report *AnalyzeReport) {
	precision := 0
	if report.Normalized {
		precision = 4
	}

	fmt.Printf("Experiment %s: %d trials\n", report.Experiment, report.Trials)
	header := []string{"Profiler", "Trials", "Time Mean", "Time Std", "Energy Mean", "Energy Std"}
	rows := make([][]string, 0, len(report.Totals))
	for _, t := range report.Totals {
		rows = append(rows, []string{
			t.Name,
			strconv.Itoa(t.Time.Samples),
			util.FormatFloat(t.Time.Mean, precision),
			util.FormatFloat(t.Time.StdDev, precision),
			util.FormatFloat(t.Energy.Mean, precision),
			util.FormatFloat(t.Energy.StdDev, precision),
		})
	}
	util.RenderTable(os.Stdout, header, rows, FlagNoBorder)

	fmt.Printf("\nPower series of %s (max time %d, max power %s)\n",
		report.PowerProfiler, report.Bounds.MaxTime, util.FormatFloat(report.Bounds.MaxPower, 3))
	header = []string{"Trial", "Points", "Peak Power", "Mean Power", "End Time"}
	rows = make([][]string, 0, len(report.Series))
	for _, s := range report.Series {
		var peak, sum float64
		var end uint64
		for _, p := range s.Points {
			peak = max(peak, p.Power)
			sum += p.Power
			end = max(end, p.Time)
		}
		mean := 0.0
		if len(s.Points) > 0 {
			mean = sum / float64(len(s.Points))
		}
		rows = append(rows, []string{
			s.Trial,
			strconv.Itoa(len(s.Points)),
			util.FormatFloat(peak, 3),
			util.FormatFloat(mean, 3),
			strconv.FormatUint(end, 10),
		})
	}
	util.RenderTable(os.Stdout, header, rows, FlagNoBorder)
}
