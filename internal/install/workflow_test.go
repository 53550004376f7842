package install

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/models"
)

type memStore struct {
	inst *models.Installation
	mu   sync.Mutex
}

func (m *memStore) SaveInstallation(_ context.Context, inst models.Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inst = &inst
	return nil
}

func (m *memStore) GetInstallation(context.Context) (*models.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inst == nil {
		return nil, nil
	}
	inst := *m.inst
	return &inst, nil
}

func (m *memStore) DeleteInstallation(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inst = nil
	return nil
}

// gatedTransfer reports up to stopAt percent, then blocks until released or cancelled.
type gatedTransfer struct {
	reached chan struct{}
	release chan struct{}
	stopAt  int
}

func newGatedTransfer(stopAt int) *gatedTransfer {
	return &gatedTransfer{stopAt: stopAt, reached: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedTransfer) Fetch(ctx context.Context, dst io.Writer, progress ProgressFunc) error {
	for i := 1; i <= g.stopAt; i++ {
		if err := progress(int64(i), 100); err != nil {
			return err
		}
	}
	close(g.reached)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.release:
	}

	_, err := dst.Write([]byte("client"))
	return err
}

type fakeProcess struct {
	exit chan error
	pid  int
}

func (p *fakeProcess) Wait() error { return <-p.exit }
func (p *fakeProcess) Pid() int    { return p.pid }

type fakeStarter struct {
	proc *fakeProcess
	err  error
	name string
	args []string
	mu   sync.Mutex
}

func (f *fakeStarter) Start(name string, args []string, _ string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.name, f.args = name, args
	if f.err != nil {
		return nil, f.err
	}
	return f.proc, nil
}

type harness struct {
	wf    *Workflow
	bus   *events.Bus
	sub   <-chan models.Event
	store *memStore
	dir   string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	bus := events.NewBus(1024, nil)
	h := &harness{
		bus:   bus,
		sub:   bus.Subscribe(),
		store: &memStore{},
		dir:   t.TempDir(),
	}

	opts.Dir = h.dir
	opts.Emitter = bus
	opts.Store = h.store
	if opts.Transfer == nil {
		opts.Transfer = SimulatedTransfer{}
	}
	h.wf = New(opts)

	return h
}

// drain returns the queued events with the given name, or all of them for "".
func (h *harness) drain(name string) []models.Event {
	var out []models.Event
	for {
		select {
		case e, ok := <-h.sub:
			if !ok {
				return out
			}
			if name == "" || e.Name == name {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func progressValues(evts []models.Event) []int {
	values := make([]int, 0, len(evts))
	for _, e := range evts {
		values = append(values, e.Payload.(int))
	}
	return values
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestDownload_EmitsEveryPercentThenComplete(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.wf.Download(t.Context()))

	all := h.drain("")

	var percents []int
	completeAt := -1
	runID := ""
	for i, e := range all {
		switch e.Name {
		case events.DownloadProgress:
			require.Equal(t, -1, completeAt, "progress after completion")
			percents = append(percents, e.Payload.(int))
			if runID == "" {
				runID = e.RunID
			}
			assert.Equal(t, runID, e.RunID)
		case events.DownloadComplete:
			require.Equal(t, -1, completeAt, "second completion")
			completeAt = i
			assert.Equal(t, true, e.Payload)
		}
	}

	assert.Equal(t, seq(0, 100), percents)
	assert.NotEqual(t, -1, completeAt)
	assert.NotEmpty(t, runID)
	assert.Equal(t, StateIdle, h.wf.State())

	_, err := os.Stat(filepath.Join(h.dir, "staging", ArtifactName))
	assert.NoError(t, err)
}

func TestDownload_RejectsOverlap(t *testing.T) {
	gate := newGatedTransfer(10)
	h := newHarness(t, Options{Transfer: gate})

	done := make(chan error, 1)
	go func() { done <- h.wf.Download(context.Background()) }()
	<-gate.reached

	err := h.wf.Download(t.Context())
	assert.ErrorIs(t, err, apperr.ErrAlreadyInProgress)
	assert.Equal(t, StateDownloading, h.wf.State())

	close(gate.release)
	require.NoError(t, <-done)
	assert.Len(t, h.drain(events.DownloadComplete), 1)
}

func TestDownload_CancelRevertsToIdle(t *testing.T) {
	for _, stopAt := range []int{0, 1, 37, 99} {
		t.Run(strconv.Itoa(stopAt), func(t *testing.T) {
			gate := newGatedTransfer(stopAt)
			h := newHarness(t, Options{Transfer: gate})

			done := make(chan error, 1)
			go func() { done <- h.wf.Download(context.Background()) }()
			<-gate.reached

			assert.True(t, h.wf.Cancel())
			err := <-done
			assert.ErrorIs(t, err, apperr.ErrCancelled)

			assert.Equal(t, StateIdle, h.wf.State())
			assert.False(t, h.wf.Cancel())
			assert.Equal(t, seq(0, stopAt), progressValues(h.drain(events.DownloadProgress)))
			assert.Empty(t, h.drain(events.DownloadComplete))

			entries, err := os.ReadDir(filepath.Join(h.dir, "staging"))
			require.NoError(t, err)
			assert.Empty(t, entries, "no partial artifact may remain")
		})
	}
}

func TestDownload_CancelUpdateKeepsInstalled(t *testing.T) {
	gate := newGatedTransfer(40)
	h := newHarness(t, Options{Transfer: gate, Version: "1.20"})

	require.NoError(t, h.wf.Install(t.Context()))
	require.Equal(t, StateInstalled, h.wf.State())

	done := make(chan error, 1)
	go func() { done <- h.wf.Download(context.Background()) }()
	<-gate.reached
	assert.Equal(t, StateDownloading, h.wf.State())

	assert.True(t, h.wf.Cancel())
	assert.ErrorIs(t, <-done, apperr.ErrCancelled)

	assert.Equal(t, StateInstalled, h.wf.State())
	assert.Empty(t, h.drain(events.DownloadComplete))

	entries, err := os.ReadDir(filepath.Join(h.dir, "staging"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	inst, err := h.store.GetInstallation(t.Context())
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "1.20", inst.Version)
}

func TestDownload_ContextCancellation(t *testing.T) {
	gate := newGatedTransfer(5)
	h := newHarness(t, Options{Transfer: gate})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.wf.Download(ctx) }()
	<-gate.reached
	cancel()

	assert.ErrorIs(t, <-done, apperr.ErrCancelled)
	assert.Equal(t, StateIdle, h.wf.State())
}

func TestDownload_EventChannelGone(t *testing.T) {
	h := newHarness(t, Options{})
	h.bus.Close()

	err := h.wf.Download(t.Context())
	assert.ErrorIs(t, err, apperr.ErrEventDeliveryFailed)
	assert.Equal(t, StateIdle, h.wf.State())
}

func TestDownloadAndInstall_HTTPWithChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 20000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	h := newHarness(t, Options{
		Transfer: NewTransfer(srv.URL, 0, srv.Client()),
		Checksum: ChecksumBytes(payload),
		Version:  "1.21",
	})

	require.NoError(t, h.wf.Download(t.Context()))
	assert.Equal(t, seq(0, 100), progressValues(h.drain(events.DownloadProgress)))

	require.NoError(t, h.wf.Install(t.Context()))
	assert.Equal(t, StateInstalled, h.wf.State())

	installed, err := os.ReadFile(filepath.Join(h.dir, "game", ArtifactName))
	require.NoError(t, err)
	assert.Equal(t, payload, installed)

	snap := h.wf.Snapshot(t.Context())
	require.NotNil(t, snap.Installation)
	assert.Equal(t, "1.21", snap.Installation.Version)
	assert.Equal(t, ChecksumBytes(payload), snap.Installation.Checksum)
	assert.False(t, snap.Staged)
}

func TestInstall_CorruptArtifact(t *testing.T) {
	src := filepath.Join(t.TempDir(), "client.jar")
	require.NoError(t, os.WriteFile(src, []byte("tampered"), 0o600))

	h := newHarness(t, Options{
		Transfer: NewTransfer("file://"+src, 0, nil),
		Checksum: ChecksumBytes([]byte("original")),
	})

	require.NoError(t, h.wf.Download(t.Context()))

	err := h.wf.Install(t.Context())
	assert.ErrorIs(t, err, apperr.ErrCorruptArtifact)
	assert.Equal(t, StateIdle, h.wf.State())

	_, err = os.Stat(filepath.Join(h.dir, "staging", ArtifactName))
	assert.True(t, os.IsNotExist(err), "corrupt artifact must be discarded")

	inst, err := h.store.GetInstallation(t.Context())
	require.NoError(t, err)
	assert.Nil(t, inst)
}

func TestInstall_WithoutDownload(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.wf.Install(t.Context()))
	assert.Equal(t, StateInstalled, h.wf.State())

	// idempotent
	require.NoError(t, h.wf.Install(t.Context()))
	assert.Equal(t, StateInstalled, h.wf.State())
}

func TestInstall_WithoutDownloadFailsVerification(t *testing.T) {
	h := newHarness(t, Options{Checksum: "00000000deadbeef"})

	assert.ErrorIs(t, h.wf.Install(t.Context()), apperr.ErrCorruptArtifact)
	assert.Equal(t, StateIdle, h.wf.State())
}

func installed(t *testing.T, opts Options) *harness {
	t.Helper()
	h := newHarness(t, opts)
	require.NoError(t, h.wf.Download(t.Context()))
	require.NoError(t, h.wf.Install(t.Context()))
	return h
}

func TestLaunch_RunningUntilExit(t *testing.T) {
	proc := &fakeProcess{pid: 4242, exit: make(chan error)}
	starter := &fakeStarter{proc: proc}
	h := installed(t, Options{Starter: starter, Runtime: "java"})

	settings := models.DefaultSettings()
	settings.AllocatedMemoryMB = 8192
	require.NoError(t, h.wf.Launch(t.Context(), settings))

	assert.Equal(t, StateRunning, h.wf.State())
	assert.Equal(t, "/usr/bin/java", starter.name)
	assert.Contains(t, starter.args, "-Xmx8192M")
	assert.Equal(t, 4242, h.wf.Snapshot(t.Context()).Pid)

	assert.ErrorIs(t, h.wf.Uninstall(t.Context()), apperr.ErrInUse)
	assert.ErrorIs(t, h.wf.Launch(t.Context(), settings), apperr.ErrInUse)
	assert.ErrorIs(t, h.wf.Download(t.Context()), apperr.ErrInUse)

	proc.exit <- errors.New("exit status 1")

	assert.Eventually(t, func() bool { return h.wf.State() == StateInstalled }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(h.drain(events.GameExited)) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.wf.Uninstall(t.Context()))
	assert.Equal(t, StateIdle, h.wf.State())
}

func TestLaunch_NotInstalled(t *testing.T) {
	h := newHarness(t, Options{Starter: &fakeStarter{}})
	assert.ErrorIs(t, h.wf.Launch(t.Context(), models.DefaultSettings()), apperr.ErrNotInstalled)
}

func TestLaunch_SpawnFailure(t *testing.T) {
	h := installed(t, Options{Starter: &fakeStarter{err: errors.New("exec: no such file")}})

	err := h.wf.Launch(t.Context(), models.DefaultSettings())
	assert.ErrorIs(t, err, apperr.ErrLaunchFailed)
	assert.Equal(t, StateInstalled, h.wf.State())
}

// blockingStarter holds Start until released.
type blockingStarter struct {
	proc    *fakeProcess
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStarter) Start(string, []string, string) (Process, error) {
	close(b.entered)
	<-b.release
	return b.proc, nil
}

func TestLaunch_SpawnDoesNotBlockReaders(t *testing.T) {
	starter := &blockingStarter{
		proc:    &fakeProcess{pid: 7, exit: make(chan error)},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := installed(t, Options{Starter: starter})

	done := make(chan error, 1)
	go func() { done <- h.wf.Launch(context.Background(), models.DefaultSettings()) }()
	<-starter.entered

	states := make(chan State, 1)
	go func() { states <- h.wf.State() }()
	select {
	case s := <-states:
		assert.Equal(t, StateLaunching, s)
	case <-time.After(2 * time.Second):
		t.Fatal("State blocked while the game was spawning")
	}

	assert.ErrorIs(t, h.wf.Uninstall(t.Context()), apperr.ErrAlreadyInProgress)
	assert.ErrorIs(t, h.wf.Launch(t.Context(), models.DefaultSettings()), apperr.ErrAlreadyInProgress)

	close(starter.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateRunning, h.wf.State())

	starter.proc.exit <- nil
	assert.Eventually(t, func() bool { return h.wf.State() == StateInstalled }, 2*time.Second, 5*time.Millisecond)
}

func TestUninstall_RemovesClient(t *testing.T) {
	h := installed(t, Options{})

	require.NoError(t, h.wf.Uninstall(t.Context()))
	assert.Equal(t, StateIdle, h.wf.State())

	_, err := os.Stat(filepath.Join(h.dir, "game"))
	assert.True(t, os.IsNotExist(err))

	inst, err := h.store.GetInstallation(t.Context())
	require.NoError(t, err)
	assert.Nil(t, inst)

	// nothing left to uninstall
	require.NoError(t, h.wf.Uninstall(t.Context()))
}

func TestRestore(t *testing.T) {
	h := installed(t, Options{})

	fresh := New(Options{Dir: h.dir, Store: h.store})
	require.NoError(t, fresh.Restore(t.Context()))
	assert.Equal(t, StateInstalled, fresh.State())

	require.NoError(t, os.RemoveAll(filepath.Join(h.dir, "game")))
	stale := New(Options{Dir: h.dir, Store: h.store})
	require.NoError(t, stale.Restore(t.Context()))
	assert.Equal(t, StateIdle, stale.State())

	inst, err := h.store.GetInstallation(t.Context())
	require.NoError(t, err)
	assert.Nil(t, inst)
}
