package sampler

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExecSampler runs an external reader as "<Binary> [Args...] <outputPath>".
// The reader keeps rewriting outputPath until it is killed.
type ExecSampler struct {
	Binary string
	Args   []string
}

type processHandle struct {
	cmd *exec.Cmd
}

func (s *ExecSampler) Start(outputPath string) (Handle, error) {
	args := append(append([]string{}, s.Args...), outputPath)
	cmd := exec.Command(s.Binary, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Source: s.Binary, Err: err}
	}
	log.Debugf("Started energy sampler %s (pid %d)", s.Binary, cmd.Process.Pid)
	return &processHandle{cmd: cmd}, nil
}

func (s *ExecSampler) Poll(outputPath string) (uint64, error) {
	return ReadEnergy(outputPath)
}

func (s *ExecSampler) Stop(h Handle, outputPath string) {
	stop(h, outputPath)
}

// Terminate kills the whole process group so helpers forked by the reader
// go with it, then reaps the leader.
func (h *processHandle) Terminate() error {
	if h.cmd.Process == nil {
		return nil
	}
	pid := h.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Debugf("Failed to kill process group %d: %v", pid, err)
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, unix.ESRCH) {
			log.Errorf("Failed to kill energy sampler process: %v", err)
		}
	}

	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed by us; the non-zero status is expected.
		return nil
	}
	return err
}
