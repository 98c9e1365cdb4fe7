package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
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
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a trial call through
	OpenTimeout time.Duration
	// HalfOpenTrials is the number of successful trial calls needed to close again
	HalfOpenTrials uint32
	// OnStateChange is called, outside the lock, whenever the state changes
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock; tests use it to step past OpenTimeout
	Now func() time.Time
}

// Counts holds the statistics for the current state
type Counts struct {
	Requests             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	Rejected             uint64
}

// Breaker guards calls to an unreliable dependency. Closed passes every call,
// Open rejects every call until OpenTimeout elapses, HalfOpen lets a limited
// number of trial calls through and closes again once they all succeed.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	openedAt   time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.HalfOpenTrials == 0 {
		settings.HalfOpenTrials = 1
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	state, _, change := b.currentState()
	b.mu.Unlock()

	b.notify(change)
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Call runs fn if the breaker accepts it and records the outcome. A rejected
// call returns ErrCircuitOpen or ErrTooManyRequests without running fn. A
// cancelled ctx is not counted as a failure of the dependency. An outcome that
// arrives after the breaker changed state is discarded.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	generation, err := b.before()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if !completed {
			b.after(generation, false)
		}
	}()

	err = fn(ctx)
	completed = true
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(generation)
		return err
	}
	b.after(generation, err == nil)
	return err
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	state, generation, change := b.currentState()
	var err error
	switch {
	case state == StateOpen:
		b.counts.Rejected++
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.HalfOpenTrials:
		b.counts.Rejected++
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	b.mu.Unlock()

	b.notify(change)
	return generation, err
}

// release returns a slot taken by before without judging the dependency.
func (b *Breaker) release(before uint64) {
	b.mu.Lock()
	_, generation, change := b.currentState()
	if generation == before && b.counts.Requests > 0 {
		b.counts.Requests--
	}
	b.mu.Unlock()

	b.notify(change)
}

func (b *Breaker) after(before uint64, success bool) {
	b.mu.Lock()
	state, generation, pending := b.currentState()
	if generation != before {
		b.mu.Unlock()
		b.notify(pending)
		return
	}

	var change transition
	if success {
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.HalfOpenTrials {
			change = b.setState(StateClosed)
		}
	} else {
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		switch state {
		case StateClosed:
			if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
				change = b.setState(StateOpen)
			}
		case StateHalfOpen:
			change = b.setState(StateOpen)
		}
	}
	b.mu.Unlock()

	b.notify(pending)
	b.notify(change)
}

// currentState must be called with mu held.
func (b *Breaker) currentState() (State, uint64, transition) {
	if b.state == StateOpen && !b.settings.Now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		change := b.setState(StateHalfOpen)
		return b.state, b.generation, change
	}
	return b.state, b.generation, transition{}
}

// setState must be called with mu held. Every change starts a new generation.
func (b *Breaker) setState(state State) transition {
	if b.state == state {
		return transition{}
	}

	prev := b.state
	b.state = state
	b.generation++
	rejected := b.counts.Rejected
	b.counts = Counts{Rejected: rejected}
	if state == StateOpen {
		b.openedAt = b.settings.Now()
	}
	return transition{from: prev, to: state, changed: true}
}
