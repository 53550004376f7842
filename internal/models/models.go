// Package models defines the data structures exchanged with the UI and persisted to storage.
package models

import "time"

// Server status values reported in ServerStatus.Status.
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusDegraded = "degraded"
)

// ClockFormat is the layout of ServerStatus.ServerClock.
const ClockFormat = "15:04:05"

// ServerStatus is a point-in-time snapshot of the game server health.
// A snapshot is never mutated after it has been produced.
type ServerStatus struct {
	CheckedAt         time.Time `json:"checked_at"`
	ServerClock       string    `json:"server_clock"`
	Status            string    `json:"status"`
	ServerName        string    `json:"server_name,omitempty"`
	MapName           string    `json:"map_name,omitempty"`
	Game              string    `json:"game,omitempty"`
	GameVersion       string    `json:"game_version,omitempty"`
	CountryCode       string    `json:"country_code,omitempty"`
	OnlinePlayerCount int       `json:"online_player_count"`
	MaxPlayers        int       `json:"max_players,omitempty"`
}

// Resolution is the game window size in pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// GameSettings is the user configuration of the game client.
// It is always replaced as a whole, never patched field by field.
type GameSettings struct {
	RuntimePath       string     `json:"runtime_path" yaml:"runtime_path"`
	Resolution        Resolution `json:"resolution" yaml:"resolution"`
	AllocatedMemoryMB int        `json:"allocated_memory_mb" yaml:"allocated_memory_mb"`
	RenderDistance    int        `json:"render_distance" yaml:"render_distance"`
	MasterVolume      float64    `json:"master_volume" yaml:"master_volume"`
	Fullscreen        bool       `json:"fullscreen" yaml:"fullscreen"`
}

// DefaultSettings returns the settings used until the user saves their own.
func DefaultSettings() GameSettings {
	return GameSettings{
		AllocatedMemoryMB: 4096,
		RuntimePath:       "/usr/bin/java",
		Resolution:        Resolution{Width: 1920, Height: 1080},
		Fullscreen:        false,
		RenderDistance:    12,
		MasterVolume:      0.8,
	}
}

// SystemInfo summarizes the local machine. Unknown values are zero.
type SystemInfo struct {
	OS            string `json:"os"`
	TotalMemoryMB uint64 `json:"total_memory_mb"`
	CPUCores      int    `json:"cpu_cores"`
}

// Installation describes the installed game client.
type Installation struct {
	InstalledAt time.Time `json:"installed_at"`
	Version     string    `json:"version"`
	Checksum    string    `json:"checksum"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
}

// Event is an out-of-band notification pushed to the UI.
type Event struct {
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
	Name    string    `json:"event"`
	RunID   string    `json:"run_id,omitempty"`
}
