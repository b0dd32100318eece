package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// SessionID identifies a scope session
type SessionID uuid.UUID

// ResourceID identifies a tracked resource (window, dialog)
type ResourceID uuid.UUID

// EventID identifies a session lifecycle event
type EventID string

// Nil IDs
var (
	NilSession  SessionID
	NilResource ResourceID
)

const EventPrefix = "evt"

// NewSessionID generates a new session ID
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// NewResourceID generates a new resource ID
func NewResourceID() ResourceID {
	return ResourceID(uuid.New())
}

// NewEventID generates a new event ID
func NewEventID() EventID {
	return EventID(Default().GenerateWithPrefix(EventPrefix))
}

func (s SessionID) String() string  { return uuid.UUID(s).String() }
func (r ResourceID) String() string { return uuid.UUID(r).String() }
func (e EventID) String() string    { return string(e) }

// IsNil reports whether the ID is the zero UUID
func (s SessionID) IsNil() bool { return s == NilSession }

// IsNil reports whether the ID is the zero UUID
func (r ResourceID) IsNil() bool { return r == NilResource }

// ParseSessionID parses a UUID string into a SessionID
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilSession, fmt.Errorf("invalid session id %q: %w", s, err)
	}
	return SessionID(u), nil
}

// ParseResourceID parses a UUID string into a ResourceID
func ParseResourceID(s string) (ResourceID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilResource, fmt.Errorf("invalid resource id %q: %w", s, err)
	}
	return ResourceID(u), nil
}

// MarshalText implements encoding.TextMarshaler so IDs render as UUID strings in JSON
func (s SessionID) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// MarshalText implements encoding.TextMarshaler
func (r ResourceID) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// Timestamp extracts the timestamp from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := len(s) - ulid.EncodedSize; i > 0 {
		s = s[i:]
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
