package session

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/lifescope/internal/shared/id"
)

// EventType names a session lifecycle event
type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventSessionClosed  EventType = "session.closed"
)

// Event reports a session state change that has already taken effect.
type Event struct {
	ID        id.EventID
	Type      EventType
	SessionID id.SessionID
	ParentID  id.SessionID // NilSession for root sessions
	Tag       scope.Tag
	At        time.Time
	// Err carries the aggregated cleanup error for EventSessionClosed.
	Err error
}

// Handler receives events synchronously on the goroutine that caused them.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// bus is a synchronous pub-sub list owned by the manager. A panicking
// handler is logged and skipped; it never undoes the state change.
type bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

func (b *bus) subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	sid := b.nextID
	b.subs = append(b.subs, subscription{id: sid, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == sid {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *bus) publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	b.metrics.RecordEvent(string(e.Type))
	for _, s := range subs {
		b.safeCall(s.handler, e)
	}
}

func (b *bus) safeCall(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.IncSubscriberPanics()
			b.logger.Error("Event handler panicked",
				zap.String("event", string(e.Type)),
				logging.Session(e.SessionID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	h(e)
}

// cascade holds the SessionClosed events of one disposal call. They are
// published once every session it touched has finished tearing down.
type cascade struct {
	closed []closedSession
}

type closedSession struct {
	session *Session
	event   Event
}

func (c *cascade) add(s *Session, e Event) {
	c.closed = append(c.closed, closedSession{session: s, event: e})
}
