package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// sseWriteTimeout bounds a single SSE write so a stalled client cannot pin the handler.
const sseWriteTimeout = 5 * time.Second

// handleEvents streams bus events as Server-Sent Events until the client leaves,
// the server shuts down or the bus is closed. Each frame carries the event name
// and the JSON encoded event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(frame string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				log.Debug().Err(err).Msg("SSE write deadlines not supported")
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprint(w, frame); err != nil {
			return err
		}

		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	log.Debug().Str("ip", clientIP(r)).Msg("Event stream opened")
	defer log.Debug().Str("ip", clientIP(r)).Msg("Event stream closed")

	// opening comment so clients see the stream immediately
	if err := writeAndFlush(": connected\n\n"); err != nil {
		return
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(e)
			if err != nil {
				log.Warn().Err(err).Str("event", e.Name).Msg("Failed to encode event")
				continue
			}
			if err := writeAndFlush(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, data)); err != nil {
				return
			}

		case <-ticker.C:
			if err := writeAndFlush(": ping\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}
