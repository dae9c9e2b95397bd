// Package stream fan-outs live civic activity (new reports and completed
// missions) to SSE subscribers feeding the city map.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds published on the feed.
const (
	KindIssueSubmitted   = "issue.submitted"
	KindIssueUpdated     = "issue.updated"
	KindMissionCompleted = "mission.completed"
)

// Event describes one unit of civic activity for map visualisation.
type Event struct {
	Kind        string    `json:"kind"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory,omitempty"`
	Status      string    `json:"status,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
