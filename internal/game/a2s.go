// Package game queries game servers using the Source Engine Query (A2S) protocol.
package game

import (
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/launcherd/internal/config"
)

// Info is the subset of A2S_INFO the launcher shows, plus the measured round trip.
type Info struct {
	Name       string
	Map        string
	Game       string
	Version    string
	Latency    time.Duration
	Players    int
	MaxPlayers int
}

// QueryServer connects to a game server via UDP and requests A2S_INFO.
// It returns an error if the server is unreachable within the configured timeout.
func QueryServer(host string, port int, options config.A2S) (*Info, error) {
	client, err := a2s.New(host, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	start := time.Now()
	info, err := client.GetInfo()
	if err != nil {
		return nil, err
	}

	return &Info{
		Name:       info.Name,
		Map:        info.Map,
		Game:       info.Game,
		Version:    info.Version,
		Players:    int(info.Players),
		MaxPlayers: int(info.MaxPlayers),
		Latency:    time.Since(start),
	}, nil
}
