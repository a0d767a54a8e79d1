// SPDX-License-Identifier: MIT

package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pulsehub/pulsehub/internal/reaper"
)

// Bus is the in-process event boundary. The external message broker is a
// deployment collaborator; the Bus is the seam it plugs into, and doubles
// as the test harness. Publishing never blocks: a saturated subscriber
// drops the event with a warning.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan any
	logger      zerolog.Logger
	closed      bool
}

// NewBus builds an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a buffered delivery channel and returns it.
func (b *Bus) Subscribe(buffer int) <-chan any {
	ch := make(chan any, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Close drops all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}

func (b *Bus) publish(ev any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().
				Str("event", "bus.subscriber_saturated").
				Msg("dropping event for slow subscriber")
		}
	}
}

// PublishProfileUpdated implements Publisher.
func (b *Bus) PublishProfileUpdated(ev ProfileUpdated) {
	b.publish(ev)
}

// CleanupCompleted implements reaper.EventSink.
func (b *Bus) CleanupCompleted(ev reaper.CleanupCompleted) {
	b.publish(ev)
}

// CleanupFailed implements reaper.EventSink.
func (b *Bus) CleanupFailed(ev reaper.CleanupFailed) {
	b.publish(ev)
}

var _ Publisher = (*Bus)(nil)
var _ reaper.EventSink = (*Bus)(nil)
