// Package install drives the download, install, launch and uninstall workflow of the game client.
//
// All state transitions happen under a single mutex that is released before any wait,
// transfer or file operation, so long-running steps never block readers or other commands.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/metrics"
	"github.com/woozymasta/launcherd/internal/models"
)

// ArtifactName is the file name of the client inside the staging and game directories.
const ArtifactName = "client.jar"

// InstallationStore persists the installation record. Implemented by storage.Repository.
type InstallationStore interface {
	SaveInstallation(ctx context.Context, inst models.Installation) error
	GetInstallation(ctx context.Context) (*models.Installation, error)
	DeleteInstallation(ctx context.Context) error
}

// Options configures a Workflow.
type Options struct {
	Transfer Transfer
	Starter  Starter
	Emitter  events.Emitter
	Store    InstallationStore
	Recorder metrics.Recorder

	// Dir holds the staging and game directories.
	Dir string
	// Checksum is the expected xxhash64 in hex; empty skips verification.
	Checksum string
	// Version is recorded with the installation.
	Version string
	// Runtime is used when the settings carry no runtime path.
	Runtime string

	InstallDelay   time.Duration
	UninstallDelay time.Duration
}

// Snapshot is the observable workflow state.
type Snapshot struct {
	Installation *models.Installation `json:"installation,omitempty"`
	State        State                `json:"state"`
	RunID        string               `json:"run_id,omitempty"`
	Progress     int                  `json:"progress"`
	Staged       bool                 `json:"staged"`
	Pid          int                  `json:"pid,omitempty"`
}

// Workflow is the install state machine.
type Workflow struct {
	opts     Options
	log      zerolog.Logger
	cancel   context.CancelFunc
	proc     Process
	runID    string
	state    State
	progress int
	mu       sync.Mutex
}

// New creates a workflow in the Idle state. Call Restore to pick up a previous installation.
func New(opts Options) *Workflow {
	if opts.Transfer == nil {
		opts.Transfer = SimulatedTransfer{}
	}
	if opts.Starter == nil {
		opts.Starter = ExecStarter{}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Noop{}
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NewBus(0, nil)
	}

	return &Workflow{
		opts:  opts,
		state: StateIdle,
		log:   logger.For("workflow"),
	}
}

func (w *Workflow) stagingPath() string { return filepath.Join(w.opts.Dir, "staging", ArtifactName) }
func (w *Workflow) gameDir() string     { return filepath.Join(w.opts.Dir, "game") }
func (w *Workflow) gamePath() string    { return filepath.Join(w.gameDir(), ArtifactName) }

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the current state with details for the UI.
func (w *Workflow) Snapshot(ctx context.Context) Snapshot {
	w.mu.Lock()
	snap := Snapshot{
		State:    w.state,
		RunID:    w.runID,
		Progress: w.progress,
	}
	if w.proc != nil {
		snap.Pid = w.proc.Pid()
	}
	w.mu.Unlock()

	if _, err := os.Stat(w.stagingPath()); err == nil {
		snap.Staged = true
	}

	if w.opts.Store != nil {
		inst, err := w.opts.Store.GetInstallation(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("Failed to read installation record")
		}
		snap.Installation = inst
	}

	return snap
}

// Restore sets the state to Installed when a previous installation is recorded and present.
func (w *Workflow) Restore(ctx context.Context) error {
	if w.opts.Store == nil {
		return nil
	}

	inst, err := w.opts.Store.GetInstallation(ctx)
	if err != nil {
		return fmt.Errorf("read installation: %w", err)
	}
	if inst == nil {
		return nil
	}

	if inst.Path != "" {
		if _, err := os.Stat(inst.Path); err != nil {
			w.log.Warn().Str("path", inst.Path).Msg("Installed client is missing, forgetting installation")
			return w.opts.Store.DeleteInstallation(ctx)
		}
	}

	w.setState(StateInstalled)
	w.log.Info().Str("version", inst.Version).Msg("Restored installed client")

	return nil
}

// setState changes the state and announces it. Callers must not hold mu.
func (w *Workflow) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.announce(s)
}

// announce publishes a state change. Delivery failures are not fatal here.
func (w *Workflow) announce(s State) {
	w.opts.Recorder.SetWorkflowState(int(s))
	if err := w.opts.Emitter.Publish(models.Event{Name: events.WorkflowState, Payload: s.String()}); err != nil {
		w.log.Debug().Err(err).Str("state", s.String()).Msg("State event not delivered")
	}
}

// Download fetches the client into the staging area, emitting progress 0..100 and then a
// completion event. It runs until the transfer finishes, ctx is done or Cancel is called.
// A cancelled or failed download leaves no staged artifact and restores the previous state.
func (w *Workflow) Download(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	prev := w.state
	switch {
	case prev.busy():
		w.mu.Unlock()
		return apperr.Newf(apperr.KindAlreadyInProgress, "cannot download while %s", prev)
	case prev == StateRunning:
		w.mu.Unlock()
		return apperr.New(apperr.KindInUse, "cannot download while the game is running")
	}
	runID := uuid.NewString()
	w.state = StateDownloading
	w.cancel = cancel
	w.runID = runID
	w.progress = 0
	w.mu.Unlock()

	w.announce(StateDownloading)
	log := w.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("Download started")

	err := w.download(runCtx, runID)

	w.mu.Lock()
	w.cancel = nil
	w.state = prev
	w.mu.Unlock()
	w.announce(prev)

	switch {
	case err == nil:
		log.Info().Msg("Download complete")
		return nil
	case errors.Is(err, apperr.ErrEventDeliveryFailed):
		log.Error().Err(err).Msg("Download aborted, progress channel is gone")
		return err
	case runCtx.Err() != nil:
		log.Info().Msg("Download cancelled")
		return apperr.Wrap(err, apperr.KindCancelled, "download cancelled")
	default:
		log.Error().Err(err).Msg("Download failed")
		return fmt.Errorf("download client: %w", err)
	}
}

func (w *Workflow) download(ctx context.Context, runID string) error {
	staged := w.stagingPath()
	part := staged + ".part"

	if err := os.MkdirAll(filepath.Dir(staged), 0o750); err != nil {
		return err
	}
	// a new run always replaces the previous artifact
	_ = os.Remove(staged)

	out, err := os.Create(part)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(part)
	}()

	rep := newProgressReporter(ctx, func(percent int) error {
		if err := w.opts.Emitter.Publish(models.Event{Name: events.DownloadProgress, RunID: runID, Payload: percent}); err != nil {
			return err
		}
		w.mu.Lock()
		w.progress = percent
		w.mu.Unlock()
		w.opts.Recorder.SetDownloadProgress(percent)
		return nil
	})

	if err := rep.start(); err != nil {
		return err
	}
	if err := w.opts.Transfer.Fetch(ctx, out, rep.update); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(part, staged); err != nil {
		return err
	}
	if err := rep.finish(); err != nil {
		_ = os.Remove(staged)
		return err
	}

	if err := w.opts.Emitter.Publish(models.Event{Name: events.DownloadComplete, RunID: runID, Payload: true}); err != nil {
		_ = os.Remove(staged)
		return err
	}

	return nil
}

// Cancel stops an in-flight download. It reports whether a download was running.
func (w *Workflow) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return false
	}
	w.cancel()
	return true
}

// Install verifies the staged artifact and moves it into the game directory.
// With nothing staged it is a no-op when already installed.
func (w *Workflow) Install(ctx context.Context) error {
	w.mu.Lock()
	prev := w.state
	switch {
	case prev == StateRunning:
		w.mu.Unlock()
		return apperr.New(apperr.KindInUse, "cannot install while the game is running")
	case prev.busy():
		w.mu.Unlock()
		return apperr.Newf(apperr.KindAlreadyInProgress, "cannot install while %s", prev)
	}
	w.state = StateInstalling
	w.mu.Unlock()
	w.announce(StateInstalling)

	err := w.install(ctx, prev == StateInstalled)
	if err != nil {
		w.setState(prev)
		w.log.Error().Err(err).Msg("Install failed")
		if ctx.Err() != nil {
			return apperr.Wrap(err, apperr.KindCancelled, "install cancelled")
		}
		return err
	}

	w.setState(StateInstalled)
	return nil
}

func (w *Workflow) install(ctx context.Context, installed bool) error {
	if err := sleepCtx(ctx, w.opts.InstallDelay); err != nil {
		return err
	}

	staged := w.stagingPath()
	if _, err := os.Stat(staged); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if installed {
			w.log.Debug().Msg("Nothing staged, client already installed")
			return nil
		}
		if w.opts.Checksum != "" {
			return apperr.New(apperr.KindCorruptArtifact, "no downloaded client to verify")
		}
		return w.record(ctx, models.Installation{Version: w.opts.Version, InstalledAt: time.Now().UTC()})
	}

	sum, size, err := Checksum(staged)
	if err != nil {
		return fmt.Errorf("checksum staged client: %w", err)
	}

	if w.opts.Checksum != "" && !sameChecksum(sum, w.opts.Checksum) {
		_ = os.Remove(staged)
		w.log.Warn().Str("got", sum).Str("want", w.opts.Checksum).Msg("Checksum mismatch")
		return apperr.Newf(apperr.KindCorruptArtifact, "client checksum %s does not match %s", sum, w.opts.Checksum)
	}

	if err := os.MkdirAll(w.gameDir(), 0o750); err != nil {
		return err
	}
	if err := os.Rename(staged, w.gamePath()); err != nil {
		return fmt.Errorf("move client into place: %w", err)
	}

	w.log.Info().Str("checksum", sum).Int64("size", size).Msg("Client installed")

	return w.record(ctx, models.Installation{
		Version:     w.opts.Version,
		Checksum:    sum,
		Path:        w.gamePath(),
		Size:        size,
		InstalledAt: time.Now().UTC(),
	})
}

func (w *Workflow) record(ctx context.Context, inst models.Installation) error {
	if w.opts.Store == nil {
		return nil
	}
	if err := w.opts.Store.SaveInstallation(ctx, inst); err != nil {
		return fmt.Errorf("record installation: %w", err)
	}
	return nil
}

// Launch starts the game with s and returns once the process is spawned.
// The workflow stays Running until the process exits, whatever its exit status.
func (w *Workflow) Launch(_ context.Context, s models.GameSettings) error {
	name, args := BuildCommand(s, w.opts.Runtime, w.gamePath())

	w.mu.Lock()
	switch w.state {
	case StateInstalled:
	case StateRunning:
		w.mu.Unlock()
		return apperr.New(apperr.KindInUse, "game is already running")
	case StateIdle:
		w.mu.Unlock()
		return apperr.ErrNotInstalled
	default:
		state := w.state
		w.mu.Unlock()
		return apperr.Newf(apperr.KindAlreadyInProgress, "cannot launch while %s", state)
	}

	w.state = StateLaunching
	w.mu.Unlock()
	w.announce(StateLaunching)

	proc, err := w.opts.Starter.Start(name, args, w.gameDir())
	if err != nil {
		w.setState(StateInstalled)
		w.log.Error().Err(err).Str("runtime", name).Msg("Failed to start game")
		return apperr.Wrap(err, apperr.KindLaunchFailed, "failed to start game")
	}

	w.mu.Lock()
	w.state = StateRunning
	w.proc = proc
	w.mu.Unlock()

	w.announce(StateRunning)
	w.log.Info().
		Str("runtime", name).
		Strs("args", args).
		Int("pid", proc.Pid()).
		Msg("Game started")

	go w.awaitExit(proc)

	return nil
}

// awaitExit returns the workflow to Installed when proc exits.
func (w *Workflow) awaitExit(proc Process) {
	code := exitCode(proc.Wait())

	w.mu.Lock()
	if w.proc == proc {
		w.proc = nil
		w.state = StateInstalled
	}
	w.mu.Unlock()

	w.announce(StateInstalled)
	w.log.Info().Int("exit_code", code).Msg("Game exited")

	if err := w.opts.Emitter.Publish(models.Event{Name: events.GameExited, Payload: code}); err != nil {
		w.log.Debug().Err(err).Msg("Exit event not delivered")
	}
}

// Uninstall removes the installed client. It fails with InUse while the game runs.
func (w *Workflow) Uninstall(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateInstalled:
	case StateIdle:
		w.mu.Unlock()
		return nil
	case StateRunning:
		w.mu.Unlock()
		return apperr.New(apperr.KindInUse, "cannot uninstall while the game is running")
	default:
		state := w.state
		w.mu.Unlock()
		return apperr.Newf(apperr.KindAlreadyInProgress, "cannot uninstall while %s", state)
	}
	w.state = StateUninstalling
	w.mu.Unlock()
	w.announce(StateUninstalling)

	if err := sleepCtx(ctx, w.opts.UninstallDelay); err != nil {
		w.setState(StateInstalled)
		return apperr.Wrap(err, apperr.KindCancelled, "uninstall cancelled")
	}

	if err := os.RemoveAll(w.gameDir()); err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("remove client files: %w", err)
	}

	if w.opts.Store != nil {
		if err := w.opts.Store.DeleteInstallation(ctx); err != nil {
			w.log.Error().Err(err).Msg("Failed to delete installation record")
		}
	}

	w.setState(StateIdle)
	w.log.Info().Msg("Client uninstalled")

	return nil
}
