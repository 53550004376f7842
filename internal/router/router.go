// Package router maps named UI commands to application operations.
//
// Each command is one request and one response: no retries, no queueing. Errors leave the
// router as *apperr.Error so the transport can flatten them to a message and a kind.
package router

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/woozymasta/launcherd/internal/app"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/metrics"
)

// Handler runs one command. payload is the raw JSON body, possibly empty.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Router dispatches commands by name.
type Router struct {
	state    *app.State
	recorder metrics.Recorder
	handlers map[string]Handler
	log      zerolog.Logger
}

// New registers every command against state. A nil recorder disables metrics.
func New(state *app.State, recorder metrics.Recorder) *Router {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	r := &Router{
		state:    state,
		recorder: recorder,
		handlers: make(map[string]Handler),
		log:      logger.For("router"),
	}
	r.register()

	return r
}

// Handle registers or replaces a command handler.
func (r *Router) Handle(name string, h Handler) {
	r.handlers[name] = h
}

// Commands returns the registered command names in sorted order.
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs the named command. Unknown names fail with KindUnknownCommand.
func (r *Router) Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	log := r.log.With().
		Str("request_id", uuid.NewString()).
		Str("command", name).
		Logger()

	h, ok := r.handlers[name]
	if !ok {
		r.recorder.ObserveCommand("unknown", string(apperr.KindUnknownCommand), 0)
		log.Debug().Msg("Unknown command")
		return nil, apperr.Newf(apperr.KindUnknownCommand, "unknown command %q", name)
	}

	start := time.Now()
	data, err := h(log.WithContext(ctx), payload)
	elapsed := time.Since(start)

	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	r.recorder.ObserveCommand(name, result, elapsed)

	if err != nil {
		ev := log.Warn()
		if apperr.KindOf(err) == apperr.KindInternal {
			ev = log.Error()
		}
		ev.Err(err).Dur("duration", elapsed).Msg("Command failed")
		return nil, flatten(err)
	}

	log.Debug().Dur("duration", elapsed).Msg("Command handled")

	return data, nil
}

// flatten makes sure every error leaving the router carries a kind.
func flatten(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return apperr.Wrap(err, apperr.KindInternal, "internal error")
}

// decode unmarshals payload into v. An empty payload leaves v untouched.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Wrap(err, apperr.KindInvalidPayload, "invalid payload")
	}
	return nil
}
