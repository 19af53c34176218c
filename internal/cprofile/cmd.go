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
	"time"

	"CraneProfiler/internal/config"
	"CraneProfiler/internal/util"

	"github.com/spf13/cobra"
)

var (
	FlagConfigFilePath string
	FlagLogLevel       string
	FlagLogFile        string
	FlagJson           bool
	FlagNoBorder       bool

	// run
	FlagCommand      string
	FlagGuardTime    time.Duration
	FlagHeartbeatDir string
	FlagOutputDir    string
	FlagSummaryFile  string
	FlagTrials       int
	FlagScopedLogs   bool
	FlagSamplerType  string
	FlagSamplerBin   string

	// analyze and inspect
	FlagDirectory     string
	FlagPowerProfiler string
	FlagFormat        string
	FlagNormalize     bool
	FlagReportDir     string
	FlagStrict        bool
	FlagSkipBadTrials bool
	FlagPublish       bool

	// compare
	FlagConfigDirs      []string
	FlagCompareHBDir    string
	FlagCompareSummFile string
	FlagCompareOutput   string

	cfg *config.Config

	RootCmd = &cobra.Command{
		Use:     "cprofile",
		Short:   "Profile the time and energy behavior of applications",
		Long:    "",
		Version: util.Version(),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd)
		},
	}
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Execute a command under energy measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd)
		},
	}
	analyzeCmd = &cobra.Command{
		Use:   "analyze [flags]",
		Short: "Summarize heartbeat logs of an experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeAnalyze(cmd)
		},
	}
	compareCmd = &cobra.Command{
		Use:   "compare [flags] [directory ...]",
		Short: "Compare whole-trial summaries of several configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeCompare(cmd, args)
		},
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [flags]",
		Short: "Show the trials and heartbeat logs of an experiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeInspect(cmd)
		},
	}
)

// Config keys overridden by each subcommand's flags.
var flagBindings = map[string]map[string]string{
	"run": {
		"profile.command":       "command",
		"profile.guard_time":    "guard-time",
		"profile.heartbeat_dir": "heartbeat-dir",
		"profile.output_dir":    "output-dir",
		"profile.summary_file":  "summary-file",
		"profile.trials":        "trials",
		"profile.scoped_logs":   "scoped-logs",
		"sampler.type":          "sampler",
		"sampler.binary":        "sampler-bin",
	},
	"analyze": {
		"analyze.directory":       "directory",
		"analyze.power_profiler":  "power-profiler",
		"analyze.strict":          "strict",
		"analyze.skip_bad_trials": "skip-bad-trials",
	},
	"compare": {
		"compare.heartbeat_dir": "heartbeat-dir",
		"compare.summary_file":  "summary-file",
	},
	"inspect": {
		"analyze.directory": "directory",
	},
}

func loadConfig(cmd *cobra.Command) error {
	if err := util.CheckLogLevel(FlagLogLevel); err != nil {
		return util.NewCraneErr(util.ErrorCmdArg, err.Error())
	}

	bindings := map[string]string{
		"log.level": "log-level",
		"log.file":  "log-file",
	}
	for key, name := range flagBindings[cmd.Name()] {
		bindings[key] = name
	}

	// The default path may be absent; an explicitly given one may not.
	optional := !cmd.Flags().Changed("config")
	c, err := config.LoadConfig(FlagConfigFilePath, optional, cmd.Flags(), bindings)
	if err != nil {
		return util.WrapCraneErr(util.ErrorConfig, "Invalid configuration: %v", err)
	}
	if err := util.InitLogger(c.Log.Level, c.Log.File); err != nil {
		return util.WrapCraneErr(util.ErrorConfig, "Failed to initialize logger: %v", err)
	}
	config.PrintConfig(c)
	cfg = c
	return nil
}

func ParseCmdArgs() {
	util.RunEWrapperForLeafCommand(RootCmd)
	util.RunAndHandleExit(RootCmd)
}

func init() {
	RootCmd.SetVersionTemplate(util.VersionTemplate())
	RootCmd.PersistentFlags().StringVarP(&FlagConfigFilePath, "config", "C",
		util.DefaultConfigPath, "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&FlagLogLevel, "log-level", "info",
		"Log level: trace, debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&FlagLogFile, "log-file", "",
		"Also write logs to this file, rotated by size")
	RootCmd.PersistentFlags().BoolVar(&FlagJson, "json", false, "Output in JSON format")
	RootCmd.PersistentFlags().BoolVar(&FlagNoBorder, "no-border", false,
		"Print tables without borders")

	runCmd.Flags().StringVarP(&FlagCommand, "command", "c", "",
		"The command to execute, for example -c \"sleep 10\"")
	runCmd.Flags().DurationVarP(&FlagGuardTime, "guard-time", "g", 20*time.Second,
		"Idle time around each execution")
	runCmd.Flags().StringVar(&FlagHeartbeatDir, "heartbeat-dir", ".",
		"Directory the application writes its heartbeat logs to")
	runCmd.Flags().StringVarP(&FlagOutputDir, "output-dir", "o", ".",
		"Directory to create trial directories in")
	runCmd.Flags().StringVarP(&FlagSummaryFile, "summary-file", "s", "summary.txt",
		"Summary file name inside each trial directory")
	runCmd.Flags().IntVarP(&FlagTrials, "trials", "t", 1, "Number of trials to run")
	runCmd.Flags().BoolVar(&FlagScopedLogs, "scoped-logs", false,
		"Let the application write heartbeat logs straight into the trial directory")
	runCmd.Flags().StringVar(&FlagSamplerType, "sampler", config.SamplerExec,
		fmt.Sprintf("Energy sampler: %s or %s", config.SamplerExec, config.SamplerRAPL))
	runCmd.Flags().StringVar(&FlagSamplerBin, "sampler-bin", "energymon",
		"Energy reader executable for the exec sampler")
	runCmd.Flags().StringVarP(&FlagFormat, "format", "f", formatTable,
		"Output format: table, json or yaml")

	analyzeCmd.Flags().StringVarP(&FlagDirectory, "directory", "d", "heartbeat_logs",
		"Experiment directory containing one subdirectory per trial")
	analyzeCmd.Flags().StringVarP(&FlagPowerProfiler, "power-profiler", "p", "APPLICATION",
		"Profiler whose heartbeats are used for the power series")
	analyzeCmd.Flags().StringVarP(&FlagFormat, "format", "f", formatTable,
		"Output format: table, json or yaml")
	analyzeCmd.Flags().BoolVar(&FlagNormalize, "normalize", false,
		"Report totals as fractions of the sum over all profilers")
	analyzeCmd.Flags().StringVarP(&FlagReportDir, "output", "o", "",
		"Also write raw_totals and ts_<trial> documents to this directory")
	analyzeCmd.Flags().BoolVar(&FlagStrict, "strict", false,
		"Fail on malformed heartbeat logs instead of treating them as empty")
	analyzeCmd.Flags().BoolVar(&FlagSkipBadTrials, "skip-bad-trials", false,
		"Skip trials without heartbeat data instead of failing")
	analyzeCmd.Flags().BoolVar(&FlagPublish, "publish", false,
		"Publish power series to the configured database")

	compareCmd.Flags().StringSliceVarP(&FlagConfigDirs, "directories", "d", nil,
		"Configuration directories to compare")
	compareCmd.Flags().StringVar(&FlagCompareHBDir, "heartbeat-dir", "heartbeat_logs",
		"Experiment directory name inside each configuration directory")
	compareCmd.Flags().StringVarP(&FlagCompareSummFile, "summary-file", "s", "summary.txt",
		"Summary file name inside each trial directory")
	compareCmd.Flags().StringVarP(&FlagFormat, "format", "f", formatTable,
		"Output format: table, json or yaml")
	compareCmd.Flags().StringVarP(&FlagCompareOutput, "output", "o", "",
		"Also write the comparison document to this file")

	inspectCmd.Flags().StringVarP(&FlagDirectory, "directory", "d", "heartbeat_logs",
		"Experiment directory containing one subdirectory per trial")

	RootCmd.AddCommand(runCmd, analyzeCmd, compareCmd, inspectCmd)
}
