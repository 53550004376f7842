package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/vars"
)

// handleInvoke runs the command named in the path with the request body as payload.
// Errors are flattened to a message and a kind; the HTTP status only hints at the class.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")

	// Max body limit size
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, apperr.Newf(apperr.KindInvalidPayload, "payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(w, apperr.Wrap(err, apperr.KindInvalidPayload, "read payload"))
		return
	}

	data, err := s.router.Invoke(r.Context(), name, payload)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

// handleCommands returns the registered command names.
func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, envelope{OK: true, Data: s.router.Commands()})
}

// handleHealth reports liveness and build version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, envelope{OK: true, Data: map[string]any{
		"status":      "ok",
		"version":     vars.Version,
		"subscribers": s.bus.Subscribers(),
	}})
}

// respondError writes err as a failed envelope.
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	respondJSON(w, statusFor(kind), envelope{Error: err.Error(), Kind: string(kind)})
}

// respondJSON writes v with the given status code.
func respondJSON(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidPayload:
		return http.StatusBadRequest
	case apperr.KindUnknownCommand:
		return http.StatusNotFound
	case apperr.KindInUse, apperr.KindAlreadyInProgress, apperr.KindNotInstalled:
		return http.StatusConflict
	case apperr.KindUnreachable:
		return http.StatusBadGateway
	case apperr.KindInternal, apperr.KindEventDeliveryFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
