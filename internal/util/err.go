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

package util

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type CraneCmdError = int

// general
const (
	ErrorSuccess  CraneCmdError = 0
	ErrorGeneric  CraneCmdError = 1
	ErrorCmdArg   CraneCmdError = 2
	ErrorConfig   CraneCmdError = 10
	ErrorIO       CraneCmdError = 11
	ErrorBackend  CraneCmdError = 12
	ErrorExisting CraneCmdError = 9
)

// measurement apparatus and workload
const (
	ErrorSamplerLaunch   CraneCmdError = 3
	ErrorEnergyRead      CraneCmdError = 4
	ErrorWorkload        CraneCmdError = 5
	ErrorEnergyIntegrity CraneCmdError = 6
)

// log processing
const (
	ErrorEmptyTrial CraneCmdError = 7
	ErrorLogParse   CraneCmdError = 8
)

type CraneError struct {
	Code    CraneCmdError
	Message string
}

func (e *CraneError) Error() string {
	return e.Message
}

func NewCraneErr(code CraneCmdError, message string) *CraneError {
	return &CraneError{
		Code:    code,
		Message: message,
	}
}

func WrapCraneErr(code CraneCmdError, format string, err error) *CraneError {
	return &CraneError{
		Code:    code,
		Message: fmt.Sprintf(format, err),
	}
}

// RunEWrapperForLeafCommand silences cobra's own error and usage printing
// so that RunAndHandleExit is the single place reporting failures.
func RunEWrapperForLeafCommand(cmd *cobra.Command) {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	for _, sub := range cmd.Commands() {
		RunEWrapperForLeafCommand(sub)
	}
}

func RunAndHandleExit(cmd *cobra.Command) {
	err := cmd.Execute()
	if err == nil {
		os.Exit(ErrorSuccess)
	}

	var craneErr *CraneError
	if errors.As(err, &craneErr) {
		if craneErr.Message != "" {
			log.Error(craneErr.Message)
		}
		os.Exit(craneErr.Code)
	}

	log.Error(err)
	os.Exit(ErrorGeneric)
}
