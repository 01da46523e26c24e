// Package events implements the single-threaded cooperative event loop
// the rest of the session runs on: every dealer frame, track-provider
// update, and metadata change is posted here and dispatched to at most
// one handler per event type, all on the loop's own goroutine; an event
// whose type has no handler is dropped.
package events

import "context"

// Type enumerates the kinds of event the loop dispatches.
type Type int

const (
	DealerMessage Type = iota
	DealerRequest
	TrackProviderUpdated
	CurrentTrackMetadataUpdated
)

func (t Type) String() string {
	switch t {
	case DealerMessage:
		return "dealer_message"
	case DealerRequest:
		return "dealer_request"
	case TrackProviderUpdated:
		return "track_provider_updated"
	case CurrentTrackMetadataUpdated:
		return "current_track_metadata_updated"
	default:
		return "unknown"
	}
}

// CurrentTrackMetadata is the payload of a CurrentTrackMetadataUpdated
// event.
type CurrentTrackMetadata struct {
	TrackURI   string
	Name       string
	DurationMs int32
}

// Event is one posted item: a type tag plus whatever payload that type
// carries (a dealer.Frame for the two dealer event types, nothing for
// TrackProviderUpdated, a CurrentTrackMetadata for the last one).
type Event struct {
	Type    Type
	Payload interface{}
}

// Handler processes one event. Handlers run synchronously on the loop's
// own goroutine; a slow handler delays every event behind it.
type Handler func(Event)

// Loop is a bounded, single-consumer event queue with one handler slot
// per Type. Posting never blocks the caller past the queue's capacity;
// Run drains it on the calling goroutine until its context is canceled.
type Loop struct {
	handlers map[Type]Handler
	queue    chan Event
}

// New builds a Loop whose queue holds up to queueSize unconsumed events
// before Post blocks.
func New(queueSize int) *Loop {
	return &Loop{handlers: map[Type]Handler{}, queue: make(chan Event, queueSize)}
}

// Post enqueues an event for the loop's next idle tick. It blocks only
// if the queue is full, which only happens if Run has stopped consuming.
func (l *Loop) Post(t Type, payload interface{}) {
	l.queue <- Event{Type: t, Payload: payload}
}

// RegisterHandler attaches h as the sole handler for t, replacing any
// handler previously registered for that type.
func (l *Loop) RegisterHandler(t Type, h Handler) {
	l.handlers[t] = h
}

// UnregisterHandler removes whatever handler is registered for t.
func (l *Loop) UnregisterHandler(t Type) {
	delete(l.handlers, t)
}

// Run dispatches events one at a time until ctx is canceled. It must run
// on its own goroutine; RegisterHandler/UnregisterHandler are not safe
// to call concurrently with Run and should be set up before it starts.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-l.queue:
			l.dispatch(ev)
		}
	}
}

func (l *Loop) dispatch(ev Event) {
	h, ok := l.handlers[ev.Type]
	if !ok {
		return
	}
	h(ev)
}
