package status

import (
	"context"
	"time"

	"github.com/woozymasta/launcherd/internal/config"
	"github.com/woozymasta/launcherd/internal/game"
	"github.com/woozymasta/launcherd/internal/models"
)

// Source produces a fresh status snapshot.
type Source interface {
	Query(ctx context.Context) (models.ServerStatus, error)
}

// StubPlayers is the population reported by StubSource.
const StubPlayers = 127

// StubSource always reports a healthy server with a fixed population.
type StubSource struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Query implements Source.
func (s StubSource) Query(context.Context) (models.ServerStatus, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	t := now().UTC()

	return models.ServerStatus{
		OnlinePlayerCount: StubPlayers,
		ServerClock:       t.Format(models.ClockFormat),
		Status:            models.StatusOnline,
		CheckedAt:         t,
	}, nil
}

// QueryFunc matches game.QueryServer and is swapped in tests.
type QueryFunc func(host string, port int, options config.A2S) (*game.Info, error)

// A2SSource queries a real game server.
type A2SSource struct {
	query           QueryFunc
	options         config.A2S
	degradedLatency time.Duration
}

// NewA2SSource creates a source for the configured server.
func NewA2SSource(options config.A2S, degradedLatency time.Duration) *A2SSource {
	return &A2SSource{
		query:           game.QueryServer,
		options:         options,
		degradedLatency: degradedLatency,
	}
}

// Query implements Source. The UDP query is bounded by the A2S timeout; ctx cancellation
// abandons the wait but the query goroutine finishes on its own timeout.
func (s *A2SSource) Query(ctx context.Context) (models.ServerStatus, error) {
	type result struct {
		info *game.Info
		err  error
	}

	done := make(chan result, 1)
	go func() {
		info, err := s.query(s.options.Host, s.options.Port, s.options)
		done <- result{info: info, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return models.ServerStatus{}, ctx.Err()
	case res = <-done:
	}
	if res.err != nil {
		return models.ServerStatus{}, res.err
	}

	now := time.Now().UTC()
	snapshot := models.ServerStatus{
		OnlinePlayerCount: res.info.Players,
		MaxPlayers:        res.info.MaxPlayers,
		ServerName:        res.info.Name,
		MapName:           res.info.Map,
		Game:              res.info.Game,
		GameVersion:       res.info.Version,
		ServerClock:       now.Format(models.ClockFormat),
		Status:            models.StatusOnline,
		CheckedAt:         now,
	}

	if s.degraded(res.info) {
		snapshot.Status = models.StatusDegraded
	}

	return snapshot, nil
}

// degraded reports a slow or full server.
func (s *A2SSource) degraded(info *game.Info) bool {
	if s.degradedLatency > 0 && info.Latency > s.degradedLatency {
		return true
	}
	return info.MaxPlayers > 0 && info.Players >= info.MaxPlayers
}
