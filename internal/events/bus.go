// Package events fans out workflow notifications to UI subscribers.
//
// Publishing never blocks: every subscriber owns a bounded buffer and, when that
// buffer is full, the oldest queued event is discarded to make room for the new one.
package events

import (
	"sync"
	"time"

	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/models"
)

// Event names pushed to the UI.
const (
	DownloadProgress = "download_progress"
	DownloadComplete = "download_complete"
	WorkflowState    = "workflow_state"
	GameExited       = "game_exited"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Emitter publishes events. Publish fails only when the channel is gone.
type Emitter interface {
	Publish(e models.Event) error
}

// Bus is an in-memory Emitter with drop-oldest subscribers.
type Bus struct {
	subscribers map[chan models.Event]struct{}
	onDrop      func()
	mu          sync.RWMutex
	buffer      int
	closed      bool
}

// NewBus creates a bus. onDrop, when not nil, is called for every discarded event.
func NewBus(buffer int, onDrop func()) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Bus{
		subscribers: make(map[chan models.Event]struct{}),
		buffer:      buffer,
		onDrop:      onDrop,
	}
}

// Publish stamps the event and offers it to every subscriber.
// It returns ErrEventDeliveryFailed after Close.
func (b *Bus) Publish(e models.Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return apperr.ErrEventDeliveryFailed
	}

	for ch := range b.subscribers {
		b.offer(ch, e)
	}

	return nil
}

// offer pushes e into ch, evicting the oldest queued event when ch is full.
func (b *Bus) offer(ch chan models.Event, e models.Event) {
	for range 2 {
		select {
		case ch <- e:
			return
		default:
		}

		select {
		case <-ch:
			b.dropped()
		default:
		}
	}

	// consumer raced us twice, give up on this event
	b.dropped()
}

func (b *Bus) dropped() {
	if b.onDrop != nil {
		b.onDrop()
	}
}

// Subscribe registers a new subscriber. The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() <-chan models.Event {
	ch := make(chan models.Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (b *Bus) Unsubscribe(ch <-chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subCh := range b.subscribers {
		if subCh == ch {
			delete(b.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels. Later Publish calls fail.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
