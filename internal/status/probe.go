// Package status probes the game server and caches the latest snapshot.
package status

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/models"
)

// Locator resolves a host to a country code. Implemented by geoip.Provider.
type Locator interface {
	CountryCode(host string) string
}

// Recorder persists snapshots. Implemented by storage.Repository.
type Recorder interface {
	RecordStatus(ctx context.Context, s models.ServerStatus) error
}

// Probe refreshes and caches the server status.
// The cached slot is guarded by its own mutex, held only for the swap itself.
type Probe struct {
	source   Source
	locator  Locator
	recorder Recorder
	latest   *models.ServerStatus
	host     string
	log      zerolog.Logger
	mu       sync.RWMutex
}

// Option configures a Probe.
type Option func(*Probe)

// WithLocator enriches snapshots with the country of host.
func WithLocator(l Locator, host string) Option {
	return func(p *Probe) {
		p.locator = l
		p.host = host
	}
}

// WithRecorder appends every successful snapshot to a history store.
func WithRecorder(r Recorder) Option {
	return func(p *Probe) { p.recorder = r }
}

// NewProbe creates a probe with no cached snapshot.
func NewProbe(source Source, opts ...Option) *Probe {
	p := &Probe{
		source: source,
		log:    logger.For("status"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Refresh queries the source, caches and returns the new snapshot.
// On failure it returns an Unreachable error and keeps the last good snapshot.
func (p *Probe) Refresh(ctx context.Context) (models.ServerStatus, error) {
	snapshot, err := p.source.Query(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("Status query failed")
		return models.ServerStatus{}, apperr.Wrap(err, apperr.KindUnreachable, "server unreachable")
	}

	if p.locator != nil && p.host != "" {
		snapshot.CountryCode = p.locator.CountryCode(p.host)
	}

	p.mu.Lock()
	p.latest = &snapshot
	p.mu.Unlock()

	if p.recorder != nil {
		if err := p.recorder.RecordStatus(ctx, snapshot); err != nil {
			p.log.Warn().Err(err).Msg("Failed to record status history")
		}
	}

	p.log.Trace().
		Str("status", snapshot.Status).
		Int("players", snapshot.OnlinePlayerCount).
		Msg("Status refreshed")

	return snapshot, nil
}

// Latest returns the cached snapshot, if any.
func (p *Probe) Latest() (models.ServerStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.latest == nil {
		return models.ServerStatus{}, false
	}
	return *p.latest, true
}
