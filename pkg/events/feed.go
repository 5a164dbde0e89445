// Package events carries the engine's monitoring feed.
//
// The engine publishes session and transfer events onto a Feed; observers
// (log sink, metrics recorder, tests) subscribe with buffered channels.
// Publishing never blocks the session goroutine: when a subscriber's buffer
// is full the event is dropped for that subscriber and a counter records the
// loss.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// SessionEventKind classifies session lifecycle events.
type SessionEventKind string

const (
	SessionConnected     SessionEventKind = "connected"
	SessionAuthenticated SessionEventKind = "authenticated"
	SessionAuthFailed    SessionEventKind = "auth_failed"
	SessionCommand       SessionEventKind = "command"
	SessionDisconnected  SessionEventKind = "disconnected"
)

// TransferDirection distinguishes uploads from downloads.
type TransferDirection string

const (
	DirectionDownload TransferDirection = "download"
	DirectionUpload   TransferDirection = "upload"
	DirectionListing  TransferDirection = "listing"
)

// TransferOutcome is the terminal status of a data transfer.
type TransferOutcome string

const (
	OutcomeComplete TransferOutcome = "complete"
	OutcomeFailed   TransferOutcome = "failed"
	OutcomeAborted  TransferOutcome = "aborted"
)

// SessionEvent describes a session lifecycle change.
type SessionEvent struct {
	SessionID string
	ClientIP  string
	User      string
	Kind      SessionEventKind

	// Command and ReplyCode are set for SessionCommand events.
	Command   string
	ReplyCode int

	Timestamp time.Time
}

// TransferEvent describes a completed, failed or aborted data transfer.
type TransferEvent struct {
	SessionID string
	User      string
	Path      string
	Direction TransferDirection
	Outcome   TransferOutcome
	Bytes     int64
	Duration  time.Duration
	Timestamp time.Time
}

// Event is either a SessionEvent or a TransferEvent.
type Event struct {
	Session  *SessionEvent
	Transfer *TransferEvent
}

// Feed is a fan-out broadcaster for engine events.
// The zero value is not usable; create feeds with NewFeed.
type Feed struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	closed  bool
	dropped atomic.Int64
}

// NewFeed creates an empty feed with no subscribers.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan Event)}
}

// Subscribe registers an observer with the given buffer size and returns the
// event channel plus an unsubscribe function. The channel is closed on
// unsubscribe or when the feed itself closes.
func (f *Feed) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// PublishSession broadcasts a session event. Never blocks.
func (f *Feed) PublishSession(ev SessionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.publish(Event{Session: &ev})
}

// PublishTransfer broadcasts a transfer event. Never blocks.
func (f *Feed) PublishTransfer(ev TransferEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.publish(Event{Transfer: &ev})
}

func (f *Feed) publish(ev Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			f.dropped.Add(1)
		}
	}
}

// Dropped returns how many events were discarded because a subscriber's
// buffer was full.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Close shuts the feed down and closes all subscriber channels.
// Publishing after Close is a no-op.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
