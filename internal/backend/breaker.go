package backend

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("backend circuit open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker guards the backend: after maxFailures consecutive failures it
// rejects calls outright for cooldown, then lets one probe through.
type breaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time

	maxFailures int
	cooldown    time.Duration
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{maxFailures: maxFailures, cooldown: cooldown}
}

func (b *breaker) call(fn func() error) error {
	b.mu.Lock()
	if b.state == stateOpen {
		if time.Since(b.lastFailure) > b.cooldown {
			b.state = stateHalfOpen
		} else {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
		}
		return err
	}

	b.state = stateClosed
	b.failures = 0
	return nil
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
