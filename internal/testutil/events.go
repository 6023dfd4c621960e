package testutil

import (
	"context"
	"sync"

	"vfs-go/internal/vfs"
)

// RecordingEventBus keeps every fired event in order.
type RecordingEventBus struct {
	mu     sync.Mutex
	events []vfs.Event
}

var _ vfs.EventBus = (*RecordingEventBus)(nil)

func (b *RecordingEventBus) Fire(_ context.Context, event vfs.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns the fired events.
func (b *RecordingEventBus) Events() []vfs.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]vfs.Event(nil), b.events...)
}

// OfType returns the fired events of type t.
func (b *RecordingEventBus) OfType(t vfs.EventType) []vfs.Event {
	var out []vfs.Event
	for _, e := range b.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Fired reports whether an event of type t mentioned path.
func (b *RecordingEventBus) Fired(t vfs.EventType, path string) bool {
	for _, e := range b.OfType(t) {
		for _, p := range e.Paths() {
			if p == path {
				return true
			}
		}
	}
	return false
}
