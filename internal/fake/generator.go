// Package fake provides utilities for generating random status history for UI development.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/models"
)

// HistoryRecorder stores status snapshots. Implemented by storage.Repository.
type HistoryRecorder interface {
	RecordStatus(ctx context.Context, s models.ServerStatus) error
}

// GenerateData records count snapshots one minute apart, ending now.
// Population follows a daily curve with noise; a few samples are degraded or offline.
func GenerateData(ctx context.Context, store HistoryRecorder, count int) int {
	maps := []string{"overworld", "nether", "the_end", "skyblock"}
	countries := []string{"US", "DE", "FR", "GB", "PL", "NL", "SE", "FI"}

	const maxPlayers = 200
	serverName := fmt.Sprintf("Launcher Test Server #%d", rand.Intn(100))
	mapName := maps[rand.Intn(len(maps))]
	country := countries[rand.Intn(len(countries))]

	now := time.Now().UTC().Truncate(time.Minute)
	saved := 0

	for i := count - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Minute)

		// busiest around 20:00 UTC
		hour := float64(at.Hour()) + float64(at.Minute())/60
		load := 0.5 + 0.4*dailyCurve(hour)
		players := int(load*maxPlayers) + rand.Intn(21) - 10
		players = max(0, min(players, maxPlayers))

		status := models.StatusOnline
		roll := rand.Float32()
		switch {
		case roll < 0.01:
			status = models.StatusOffline
			players = 0
		case roll < 0.06 || players == maxPlayers:
			status = models.StatusDegraded
		}

		snap := models.ServerStatus{
			CheckedAt:         at,
			ServerClock:       at.Format(models.ClockFormat),
			Status:            status,
			ServerName:        serverName,
			MapName:           mapName,
			CountryCode:       country,
			OnlinePlayerCount: players,
			MaxPlayers:        maxPlayers,
		}

		if err := store.RecordStatus(ctx, snap); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake status")
			continue
		}
		saved++
	}

	log.Info().Int("count", saved).Msg("Fake status history generated")

	return saved
}

// dailyCurve maps an hour of day to [-1, 1], peaking at 20:00 and bottoming at 08:00.
func dailyCurve(hour float64) float64 {
	d := hour - 20
	if d < 0 {
		d = -d
	}
	if d > 12 {
		d = 24 - d
	}
	return 1 - d/6
}
