// Package settings owns the game settings record shared by all commands.
package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/launcherd/internal/models"
)

// Persister reads and writes the settings record.
type Persister interface {
	// Read returns the stored settings or an error wrapping os.ErrNotExist.
	Read() (models.GameSettings, error)
	// Write stores the settings synchronously.
	Write(models.GameSettings) error
}

// Store holds the current settings.
//
// Readers never observe a partial value: the record is swapped whole under mu.
// saveMu serializes writers so the persisted file and the in-memory value
// always end up with the same last writer.
type Store struct {
	persister Persister
	current   models.GameSettings
	mu        sync.RWMutex
	saveMu    sync.Mutex
}

// NewStore returns a store holding the default settings and no persistence.
func NewStore() *Store {
	return &Store{current: models.DefaultSettings()}
}

// Open returns a store backed by p, loaded from it when possible.
// A missing or unreadable file leaves the defaults in place.
func Open(p Persister) *Store {
	s := &Store{current: models.DefaultSettings(), persister: p}
	if p == nil {
		return s
	}

	loaded, err := p.Read()
	switch {
	case err == nil:
		s.current = loaded
		log.Info().Msg("Settings loaded")
	case errors.Is(err, os.ErrNotExist):
		log.Info().Msg("No settings file, using defaults")
	default:
		log.Warn().Err(err).Msg("Failed to read settings, using defaults")
	}

	return s
}

// Load returns a copy of the current settings.
func (s *Store) Load() models.GameSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save replaces the settings. Values are stored as given, without validation.
// With a persister the file is written first; a write failure leaves the value unchanged.
func (s *Store) Save(next models.GameSettings) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.persister != nil {
		if err := s.persister.Write(next); err != nil {
			return fmt.Errorf("persist settings: %w", err)
		}
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	return nil
}

// Reload reads p and swaps the result into memory without writing it back.
// The read happens under the save lock, so a value read before a concurrent Save
// can never overwrite it. It reports whether the value changed.
func (s *Store) Reload(p Persister) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	next, err := p.Read()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == next {
		return false, nil
	}
	s.current = next
	return true, nil
}
