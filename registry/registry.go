// Package registry pairs two parties that arrive with the same key.
//
// The first party to arrive with a key waits until a second party arrives with
// the same key or WaitTimeout elapses. The second party never waits. Once a pair
// has been released the key is free again, so a third arrival starts a new
// rendezvous.
package registry

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/semihalev/zlog/v2"
)

// WaitTimeout bounds the wait of a first party.
const WaitTimeout = 10 * time.Second

// Outcome type
type Outcome uint8

const (
	// Paired means a partner arrived.
	Paired Outcome = iota + 1
	// TimedOut means no partner arrived within WaitTimeout.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Paired:
		return "paired"
	case TimedOut:
		return "timedout"
	default:
		return "unknown"
	}
}

// Observer receives registry events. Calls are made outside the registry lock.
type Observer interface {
	Arrived(key string, first bool)
	Released(key string, outcome Outcome, waited time.Duration)
}

type waiter struct {
	key     string
	wake    chan struct{}
	arrived time.Time
}

// Registry type
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*waiter

	clock    clock.Clock
	observer Observer
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// New return new registry
func New(opts ...Option) *Registry {
	r := &Registry{
		waiters: make(map[string]*waiter),
		clock:   clock.New(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Arrive registers a party for key and returns once the rendezvous is decided.
func (r *Registry) Arrive(key string) Outcome {
	r.mu.Lock()

	if w, ok := r.waiters[key]; ok {
		delete(r.waiters, key)
		r.mu.Unlock()

		// exactly one party removes an entry, so the channel is closed once
		close(w.wake)

		zlog.Debug("Second party arrived", "key", key)
		r.arrived(key, false)

		return Paired
	}

	w := &waiter{
		key:     key,
		wake:    make(chan struct{}),
		arrived: r.clock.Now(),
	}
	r.waiters[key] = w

	// armed inside the lock so Len never reports a waiter without a deadline
	timer := r.clock.Timer(WaitTimeout)

	r.mu.Unlock()

	defer timer.Stop()

	zlog.Debug("First party arrived", "key", key)
	r.arrived(key, true)

	select {
	case <-w.wake:
		return r.release(w, Paired)
	case <-timer.C:
	}

	r.mu.Lock()
	owned := r.waiters[key] == w
	if owned {
		delete(r.waiters, key)
	}
	r.mu.Unlock()

	if !owned {
		// a second party removed the entry before the timer fired,
		// its wake signal is already on the way
		return r.release(w, Paired)
	}

	return r.release(w, TimedOut)
}

// Len returns the number of parties waiting for a partner.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.waiters)
}

func (r *Registry) arrived(key string, first bool) {
	if r.observer != nil {
		r.observer.Arrived(key, first)
	}
}

func (r *Registry) release(w *waiter, outcome Outcome) Outcome {
	waited := r.clock.Since(w.arrived)

	if outcome == TimedOut {
		zlog.Debug("Rendezvous timed out", "key", w.key, "waited", waited.String())
	} else {
		zlog.Debug("Rendezvous paired", "key", w.key, "waited", waited.String())
	}

	if r.observer != nil {
		r.observer.Released(w.key, outcome, waited)
	}

	return outcome
}
