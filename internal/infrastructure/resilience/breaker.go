package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many trial requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxTrials is the number of calls let through while half-open. The
	// breaker closes once that many succeed in a row.
	MaxTrials uint32
	// Interval clears the counts periodically while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before allowing trials
	Timeout time.Duration
	// ReadyToTrip decides, after a failure while closed, whether to open
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes every transition
	OnStateChange func(name string, from, to State)
}

// Counts holds the statistics of the current generation
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards calls to a dependency that may be failing
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a breaker. Zero settings trip after three consecutive failures
// and retry after thirty seconds.
func New(name string, settings Settings) *Breaker {
	if settings.MaxTrials == 0 {
		settings.MaxTrials = 1
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 3 }
	}
	b := &Breaker{name: name, settings: settings, now: time.Now}
	b.expiry = b.closedExpiry(b.now())
	return b
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string { return b.name }

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(b.now())
	return b.state
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker rejects it. Context cancellation is not
// counted as a failure of the dependency. Panics count as failures and are
// re-raised.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) (err error) {
	generation, err := b.before()
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if r := recover(); r != nil {
			b.after(generation, false)
			panic(r)
		}
		b.after(generation, success)
	}()

	err = fn(ctx)
	success = err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	return err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxTrials:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) after(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.advance(now)
	if generation != b.generation {
		return
	}

	if success {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxTrials {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch b.state {
	case StateClosed:
		if b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// advance applies time-based transitions. Caller holds mu.
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && !now.Before(b.expiry) {
			b.newGeneration(b.closedExpiry(now))
		}
	case StateOpen:
		if !now.Before(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
}

// transition changes state and starts a new generation. Caller holds mu.
func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.newGeneration(b.closedExpiry(now))
	case StateOpen:
		b.newGeneration(now.Add(b.settings.Timeout))
	default:
		b.newGeneration(time.Time{})
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) newGeneration(expiry time.Time) {
	b.generation++
	b.counts = Counts{}
	b.expiry = expiry
}

func (b *Breaker) closedExpiry(now time.Time) time.Time {
	if b.settings.Interval <= 0 {
		return time.Time{}
	}
	return now.Add(b.settings.Interval)
}
