// Package breaker guards calls to external targets. Each target gets its
// own Breaker; a Set hands them out by name.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while a target's breaker is open.
var ErrOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after Threshold consecutive failures and lets one trial call
// through once Cooldown has passed since the last failure.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may go ahead. In half-open state only one
// caller at a time is admitted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// Success closes the breaker and resets the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
}

// Failure records a failed call. A failed trial call reopens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	b.trialInFlight = false
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// Release gives back a half-open trial slot without recording an outcome.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// Outcome is how a finished call counts against the breaker.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Neutral
)

// Classifier maps the error of a finished call to an Outcome.
type Classifier func(error) Outcome

// ErrorsFail counts every non-nil error as a failure.
func ErrorsFail(err error) Outcome {
	if err != nil {
		return Failed
	}
	return Succeeded
}

// Do runs fn if the breaker allows it and records the outcome chosen by
// classify. A nil classify means ErrorsFail.
func (b *Breaker) Do(fn func() error, classify Classifier) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if classify == nil {
		classify = ErrorsFail
	}
	err := fn()
	switch classify(err) {
	case Succeeded:
		b.Success()
	case Failed:
		b.Failure()
	default:
		b.Release()
	}
	return err
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	State       State
	Failures    int
	LastFailure time.Time
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.state
	if state == StateOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		state = StateHalfOpen
	}
	return Snapshot{State: state, Failures: b.failures, LastFailure: b.lastFailure}
}

// Set owns one Breaker per target.
type Set struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewSet(threshold int, cooldown time.Duration) *Set {
	return &Set{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		breakers:  make(map[string]*Breaker),
	}
}

// For returns the breaker for target, creating it on first use.
func (s *Set) For(target string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[target]
	if !ok {
		b = New(s.threshold, s.cooldown)
		b.now = s.now
		s.breakers[target] = b
	}
	return b
}

// Snapshots reports every known target.
func (s *Set) Snapshots() map[string]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Snapshot, len(s.breakers))
	for target, b := range s.breakers {
		out[target] = b.Snapshot()
	}
	return out
}
