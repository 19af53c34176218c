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
	"fmt"
	"os"
	"path/filepath"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"
)

type LogInfo struct {
	Profiler  string `json:"profiler" yaml:"profiler"`
	File      string `json:"file" yaml:"file"`
	Status    string `json:"status" yaml:"status"`
	Intervals int    `json:"intervals" yaml:"intervals"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type TrialInfo struct {
	Name    string          `json:"name" yaml:"name"`
	Logs    []LogInfo       `json:"logs" yaml:"logs"`
	Summary *summary.Record `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// inspectExperiment lists every trial of dir with the raw state of its logs.
// Nothing is normalized, so trials that analyze would reject still show up.
func inspectExperiment(dir string, summaryFile string) ([]TrialInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var trials []TrialInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		trialDir := filepath.Join(dir, entry.Name())
		info := TrialInfo{Name: entry.Name(), Logs: []LogInfo{}}

		paths, _ := filepath.Glob(filepath.Join(trialDir, "*"+heartbeat.FileSuffix))
		for _, path := range paths {
			l, err := heartbeat.ParseFile(path)
			if l == nil {
				return nil, err
			}
			li := LogInfo{
				Profiler:  l.Profiler,
				File:      filepath.Base(path),
				Status:    l.Status.String(),
				Intervals: len(l.Intervals),
			}
			if err != nil {
				li.Error = err.Error()
			}
			info.Logs = append(info.Logs, li)
		}

		if path := filepath.Join(trialDir, summaryFile); util.PathExists(path) {
			if record, err := summary.ReadFile(path); err == nil {
				info.Summary = record
			}
		}
		trials = append(trials, info)
	}
	return trials, nil
}

func buildTree(root string, trials []TrialInfo) treeprint.Tree {
	tree := treeprint.NewWithRoot(root)
	for _, t := range trials {
		label := t.Name
		if t.Summary != nil {
			status := summary.StatusSuccess
			if !t.Summary.Success {
				status = summary.StatusFailure
			}
			label = fmt.Sprintf("%s [%s, %s s, %d uJ]", t.Name, status,
				util.FormatFloat(t.Summary.TimeSec, 3), t.Summary.EnergyUJ)
		}
		if len(t.Logs) == 0 {
			tree.AddNode(label + " (no heartbeat logs)")
			continue
		}

		branch := tree.AddBranch(label)
		for _, l := range t.Logs {
			node := fmt.Sprintf("%s: %d intervals (%s)", l.Profiler, l.Intervals, l.Status)
			if l.Error != "" {
				node += ": " + l.Error
			}
			branch.AddNode(node)
		}
	}
	return tree
}

func executeInspect(cmd *cobra.Command) error {
	format := formatTable
	if FlagJson {
		format = formatJSON
	}

	trials, err := inspectExperiment(cfg.Analyze.Directory, cfg.Profile.SummaryFile)
	if err != nil {
		return util.WrapCraneErr(util.ErrorIO, "Failed to inspect experiment: %v", err)
	}

	if format == formatJSON {
		return encode(os.Stdout, format, trials)
	}
	fmt.Println(buildTree(cfg.Analyze.Directory, trials).String())
	return nil
}
