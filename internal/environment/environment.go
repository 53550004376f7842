// Package environment inspects the local machine without touching shared state.
package environment

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/models"
)

// Probe detects the game runtime and summarizes the host.
type Probe struct {
	// memory returns total physical memory in bytes; swapped in tests.
	memory      func() (uint64, error)
	executable  string
	versionFlag string
	timeout     time.Duration
}

// NewProbe creates a probe for the given runtime executable (e.g. "java").
func NewProbe(executable, versionFlag string, timeout time.Duration) *Probe {
	if versionFlag == "" {
		versionFlag = "-version"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Probe{
		executable:  executable,
		versionFlag: versionFlag,
		timeout:     timeout,
		memory:      totalMemory,
	}
}

// DetectRuntime runs the runtime version check and returns its raw output.
// A missing executable, a start failure or a non-zero exit is RuntimeNotFound.
func (p *Probe) DetectRuntime(ctx context.Context) (string, error) {
	return p.detect(ctx, p.executable)
}

// DetectRuntimeAt runs the version check against an explicit executable path.
func (p *Probe) DetectRuntimeAt(ctx context.Context, path string) (string, error) {
	return p.detect(ctx, path)
}

func (p *Probe) detect(ctx context.Context, executable string) (string, error) {
	if executable == "" {
		return "", apperr.New(apperr.KindRuntimeNotFound, "runtime executable is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, executable, p.versionFlag)
	// java prints its version to stderr
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		log.Debug().Err(err).Str("executable", executable).Msg("Runtime check failed")

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", apperr.Wrap(err, apperr.KindRuntimeNotFound, "runtime version check failed")
		}
		return "", apperr.Wrap(err, apperr.KindRuntimeNotFound, "runtime not found on the system")
	}

	return strings.TrimSpace(out.String()), nil
}

// SystemSummary reports total memory, CPU count and OS family.
// Values that cannot be determined are zero; it never fails.
func (p *Probe) SystemSummary() models.SystemInfo {
	info := models.SystemInfo{
		CPUCores: runtime.NumCPU(),
		OS:       runtime.GOOS,
	}

	total, err := p.memory()
	if err != nil {
		log.Debug().Err(err).Msg("Total memory unavailable")
	} else {
		info.TotalMemoryMB = total / (1024 * 1024)
	}

	return info
}
