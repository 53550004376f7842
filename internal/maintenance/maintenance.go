// Package maintenance provide tools for cleaning the database from the command line
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/config"
)

// HistoryPruner deletes status history older than a cutoff. Implemented by storage.Repository.
type HistoryPruner interface {
	PruneStatusHistory(ctx context.Context, before time.Time) (int64, error)
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store HistoryPruner) bool {
	if !cfg.Storage.PruneHistory {
		return false
	}

	before := time.Now().Add(-cfg.Storage.HistoryRetention)
	log.Info().
		Dur("retention", cfg.Storage.HistoryRetention).
		Time("before", before).
		Msg("Pruning status history...")

	count, err := store.PruneStatusHistory(ctx, before)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune status history")
	} else {
		log.Info().Int64("deleted", count).Msg("Prune finished")
	}

	return true
}
