package install

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/woozymasta/launcherd/internal/models"
)

// Process is a started game process.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	Pid() int
}

// Starter spawns the game process.
type Starter interface {
	Start(name string, args []string, dir string) (Process, error)
}

// ExecStarter starts processes with os/exec. The process is not tied to any request
// context so it outlives the command that launched it.
type ExecStarter struct{}

// Start implements Starter.
func (ExecStarter) Start(name string, args []string, dir string) (Process, error) {
	cmd := exec.Command(name, args...) //nolint:gosec // runtime path is user configuration
	cmd.Dir = dir

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p execProcess) Wait() error { return p.cmd.Wait() }
func (p execProcess) Pid() int    { return p.cmd.Process.Pid }

// BuildCommand returns the runtime executable and arguments for launching jar with s.
// An empty runtime path in s falls back to fallback.
func BuildCommand(s models.GameSettings, fallback, jar string) (string, []string) {
	runtime := s.RuntimePath
	if runtime == "" {
		runtime = fallback
	}

	args := []string{
		fmt.Sprintf("-Xmx%dM", s.AllocatedMemoryMB),
		"-jar", jar,
		"--width", strconv.Itoa(s.Resolution.Width),
		"--height", strconv.Itoa(s.Resolution.Height),
	}
	if s.Fullscreen {
		args = append(args, "--fullscreen")
	}

	return runtime, args
}

// exitCode maps a Wait error to a process exit code, -1 when unknown.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
