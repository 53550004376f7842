// Package app holds the application state shared by every command handler.
package app

import (
	"context"

	"github.com/woozymasta/launcherd/internal/environment"
	"github.com/woozymasta/launcherd/internal/events"
	"github.com/woozymasta/launcherd/internal/install"
	"github.com/woozymasta/launcherd/internal/models"
	"github.com/woozymasta/launcherd/internal/settings"
	"github.com/woozymasta/launcherd/internal/status"
	"github.com/woozymasta/launcherd/internal/vars"
)

// HistoryReader lists recorded status snapshots, newest first. Implemented by storage.Repository.
type HistoryReader interface {
	StatusHistory(ctx context.Context, limit int) ([]models.ServerStatus, error)
}

// State is created once in main and lives for the process lifetime.
// Settings and the status snapshot are guarded by their owners, never by State itself.
type State struct {
	Settings    *settings.Store
	Status      *status.Probe
	Environment *environment.Probe
	Workflow    *install.Workflow
	Events      *events.Bus

	// History is optional; nil disables get_server_history.
	History HistoryReader

	Build vars.BuildInfo
}
