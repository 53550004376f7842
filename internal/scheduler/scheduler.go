// Package scheduler runs the periodic background jobs: status refresh and history pruning.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/models"
)

// Refresher refreshes the cached server status. Implemented by status.Probe.
type Refresher interface {
	Refresh(ctx context.Context) (models.ServerStatus, error)
}

// Pruner deletes status history older than a cutoff. Implemented by storage.Repository.
type Pruner interface {
	PruneStatusHistory(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler wraps a gocron scheduler. Jobs share a context cancelled by Stop.
type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// New creates a stopped scheduler.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.For("scheduler"),
	}, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", len(s.scheduler.Jobs())).Msg("Starting scheduler")
	s.scheduler.Start()
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.log.Info().Msg("Stopping scheduler")
	s.cancel()
	return s.scheduler.Shutdown()
}

// ScheduleStatusRefresh refreshes the status every interval, starting immediately.
// A non-positive interval schedules nothing and returns an empty id.
func (s *Scheduler) ScheduleStatusRefresh(interval time.Duration, r Refresher) (string, error) {
	if interval <= 0 {
		return "", nil
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.refresh, r),
		gocron.WithName("status-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create status refresh job: %w", err)
	}

	return job.ID().String(), nil
}

// ScheduleHistoryPrune deletes history older than retention every interval.
// A non-positive retention schedules nothing.
func (s *Scheduler) ScheduleHistoryPrune(interval, retention time.Duration, p Pruner) (string, error) {
	if interval <= 0 || retention <= 0 {
		return "", nil
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.prune, p, retention),
		gocron.WithName("history-prune"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create history prune job: %w", err)
	}

	return job.ID().String(), nil
}

func (s *Scheduler) refresh(r Refresher) {
	snap, err := r.Refresh(s.ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("Scheduled status refresh failed")
		return
	}

	s.log.Trace().
		Str("status", snap.Status).
		Int("players", snap.OnlinePlayerCount).
		Msg("Scheduled status refresh")
}

func (s *Scheduler) prune(p Pruner, retention time.Duration) {
	before := time.Now().Add(-retention)

	deleted, err := p.PruneStatusHistory(s.ctx, before)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to prune status history")
		return
	}

	s.log.Debug().
		Int64("deleted", deleted).
		Time("before", before).
		Msg("Status history pruned")
}
