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
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"CraneProfiler/internal/config"
	"CraneProfiler/internal/db"
	"CraneProfiler/internal/orchestrator"
	"CraneProfiler/internal/sampler"
	"CraneProfiler/internal/summary"
	"CraneProfiler/internal/util"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func executeRun(cmd *cobra.Command) error {
	if cfg.Profile.Command == "" {
		return util.NewCraneErr(util.ErrorCmdArg, "No command specified, use -c/--command.")
	}
	format, err := outputFormat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Profile.OutputDir, 0755); err != nil {
		return util.WrapCraneErr(util.ErrorIO, "Failed to create output directory: %v", err)
	}
	if !cfg.Profile.ScopedLogs {
		if err := os.MkdirAll(cfg.Profile.HeartbeatDir, 0755); err != nil {
			return util.WrapCraneErr(util.ErrorIO, "Failed to create heartbeat directory: %v", err)
		}
	}

	s, err := sampler.New(cfg.Sampler)
	if err != nil {
		return util.WrapCraneErr(util.ErrorConfig, "%v", err)
	}

	options := []orchestrator.Option{
		orchestrator.WithRunner(orchestrator.ShellRunner{Shell: cfg.Profile.Shell}),
	}
	if cfg.DB.Type != config.DBNone {
		sink, err := db.NewDatabase(cfg.DB)
		if err != nil {
			return util.WrapCraneErr(util.ErrorBackend, "Failed to connect to result database: %v", err)
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Warnf("Failed to close result database: %v", err)
			}
		}()
		options = append(options, orchestrator.WithSink(sink))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := orchestrator.New(orchestrator.OptionsFromConfig(cfg), s, options...)
	records, runErr := o.Run(ctx)

	if len(records) > 0 {
		if err := printRecords(format, records); err != nil {
			log.Errorf("Failed to print results: %v", err)
		}
	}
	if runErr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return util.NewCraneErr(util.ErrorGeneric, "Interrupted.")
		}
		return toCraneError(runErr)
	}
	return nil
}

func printRecords(format string, records []*summary.Record) error {
	if format != formatTable {
		return encode(os.Stdout, format, records)
	}

	header := []string{"Trial", "Time (s)", "Energy (uJ)", "Power (W)", "Exit Code", "Status"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := summary.StatusSuccess
		if !r.Success {
			status = summary.StatusFailure
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Trial),
			util.FormatFloat(r.TimeSec, 3),
			strconv.FormatUint(r.EnergyUJ, 10),
			util.FormatFloat(r.PowerW, 3),
			strconv.Itoa(r.ExitCode),
			status,
		})
	}
	util.RenderTable(os.Stdout, header, rows, FlagNoBorder)
	return nil
}
