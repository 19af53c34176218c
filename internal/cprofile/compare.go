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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"CraneProfiler/internal/aggregate"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// loadConfigSummaries reads <dir>/<heartbeatDir>/<trial>/<summaryFile> for
// every trial of one configuration. Trials without a summary are skipped.
func loadConfigSummaries(dir string, heartbeatDir string, summaryFile string) (aggregate.ConfigSummaries, error) {
	result := aggregate.ConfigSummaries{ID: dir}

	trialsDir := filepath.Join(dir, heartbeatDir)
	entries, err := os.ReadDir(trialsDir)
	if err != nil {
		return result, fmt.Errorf("failed to read trials of %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(trialsDir, entry.Name(), summaryFile)
		if !util.PathExists(path) {
			log.Warnf("Trial %s of %s has no summary file, skipping", entry.Name(), dir)
			continue
		}
		record, err := summary.ReadFile(path)
		if err != nil {
			return result, err
		}
		if !record.Success {
			log.Infof("Excluding failed trial %s of %s", entry.Name(), dir)
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

func executeCompare(cmd *cobra.Command, args []string) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	dirs := append(append([]string{}, FlagConfigDirs...), args...)
	if len(dirs) == 0 {
		return util.NewCraneErr(util.ErrorCmdArg,
			"No configuration directories specified, use -d/--directories.")
	}

	configs := make([]aggregate.ConfigSummaries, 0, len(dirs))
	for _, dir := range dirs {
		c, err := loadConfigSummaries(dir, cfg.Compare.HeartbeatDir, cfg.Compare.SummaryFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return util.WrapCraneErr(util.ErrorIO, "%v", err)
			}
			return util.WrapCraneErr(util.ErrorLogParse, "%v", err)
		}
		if len(c.Records) == 0 {
			return util.NewCraneErr(util.ErrorEmptyTrial,
				fmt.Sprintf("No trial summaries found for configuration %s.", dir))
		}
		configs = append(configs, c)
	}

	totals := aggregate.CrossConfigurationTotals(configs)

	if FlagCompareOutput != "" {
		docFormat := format
		if docFormat == formatTable {
			docFormat = formatJSON
		}
		if err := writeDocument(FlagCompareOutput, docFormat, totals); err != nil {
			return util.WrapCraneErr(util.ErrorIO, "Failed to write comparison: %v", err)
		}
	}

	if format != formatTable {
		return encode(os.Stdout, format, totals)
	}

	header := []string{"Configuration", "Trials", "Time Mean (s)", "Time Std (s)", "Energy Mean (uJ)", "Energy Std (uJ)"}
	rows := make([][]string, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, []string{
			t.Name,
			strconv.Itoa(t.Time.Samples),
			util.FormatFloat(t.Time.Mean, 3),
			util.FormatFloat(t.Time.StdDev, 3),
			util.FormatFloat(t.Energy.Mean, 0),
			util.FormatFloat(t.Energy.StdDev, 0),
		})
	}
	util.RenderTable(os.Stdout, header, rows, FlagNoBorder)
	return nil
}
