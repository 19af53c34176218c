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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"CraneProfiler/internal/heartbeat"
	"CraneProfiler/internal/ingest"
	"CraneProfiler/internal/orchestrator"
	"CraneProfiler/internal/sampler"
	"CraneProfiler/internal/util"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func outputFormat() (string, error) {
	if FlagJson {
		return formatJSON, nil
	}
	switch FlagFormat {
	case formatTable, formatJSON, formatYAML:
		return FlagFormat, nil
	case "":
		return formatTable, nil
	}
	return "", util.NewCraneErr(util.ErrorCmdArg,
		fmt.Sprintf("Invalid output format %q, expected table, json or yaml.", FlagFormat))
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func writeDocument(path string, format string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f, format, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// toCraneError maps a failure onto the exit code of the stage it came from.
func toCraneError(err error) error {
	if err == nil {
		return nil
	}

	var (
		craneErr     *util.CraneError
		launchErr    *sampler.LaunchError
		readErr      *sampler.ReadError
		integrityErr *orchestrator.EnergyIntegrityError
		workloadErr  *orchestrator.WorkloadError
		emptyErr     *ingest.EmptyTrialError
		parseErr     *heartbeat.ParseError
	)
	switch {
	case errors.As(err, &craneErr):
		return craneErr
	case errors.As(err, &launchErr):
		return util.WrapCraneErr(util.ErrorSamplerLaunch, "Energy sampler launch failed: %v", err)
	case errors.As(err, &readErr):
		return util.WrapCraneErr(util.ErrorEnergyRead, "Energy read failed: %v", err)
	case errors.As(err, &integrityErr):
		return util.WrapCraneErr(util.ErrorEnergyIntegrity, "Energy validation failed: %v", err)
	case errors.As(err, &workloadErr):
		return util.WrapCraneErr(util.ErrorWorkload, "Workload command failed: %v", err)
	case errors.Is(err, orchestrator.ErrTrialExists):
		return util.WrapCraneErr(util.ErrorExisting, "Refusing to overwrite existing data: %v", err)
	case errors.As(err, &emptyErr):
		return util.WrapCraneErr(util.ErrorEmptyTrial, "Cannot establish trial origin: %v", err)
	case errors.As(err, &parseErr):
		return util.WrapCraneErr(util.ErrorLogParse, "Malformed heartbeat log: %v", err)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return util.WrapCraneErr(util.ErrorIO, "%v", err)
	default:
		return util.WrapCraneErr(util.ErrorGeneric, "%v", err)
	}
}
