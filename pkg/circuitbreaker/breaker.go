// Package circuitbreaker sheds calls to an external dependency after it
// fails repeatedly, then lets a limited number of probes through to detect
// recovery. The auth, LLM, and graph clients each run behind their own
// breaker so one dead dependency cannot stall the request path.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned without invoking the operation while the breaker is
// shedding load.
var ErrOpen = errors.New("circuit open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes one breaker. Zero fields take the defaults noted per field.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (5)
	SuccessThreshold int           // half-open successes before closing (2)
	Cooldown         time.Duration // open duration before probing (30s)
	HalfOpenProbes   int           // concurrent probes allowed half-open (1)
	Logger           *zap.Logger
}

type Breaker struct {
	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	halfOpenProbes   int
	logger           *zap.Logger

	mu        sync.Mutex
	state     State
	epoch     uint64
	failures  int
	successes int
	inflight  int
	openedAt  time.Time
}

func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	return &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		halfOpenProbes:   cfg.HalfOpenProbes,
		logger:           cfg.Logger,
	}
}

// Execute runs fn unless the breaker is shedding, and records the outcome.
// A panic counts as a failure and is re-raised.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	epoch, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.report(epoch, false)
			panic(r)
		}
	}()

	err = fn()
	b.report(epoch, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if time.Since(b.openedAt) < b.cooldown {
			return 0, ErrOpen
		}
		b.transition(HalfOpen)
	}
	if b.state == HalfOpen {
		if b.inflight >= b.halfOpenProbes {
			return 0, ErrOpen
		}
		b.inflight++
	}
	return b.epoch, nil
}

func (b *Breaker) report(epoch uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Outcomes from before the last state change no longer count.
	if epoch != b.epoch {
		return
	}

	if b.state == HalfOpen && b.inflight > 0 {
		b.inflight--
	}

	if success {
		b.failures = 0
		if b.state == HalfOpen {
			b.successes++
			if b.successes >= b.successThreshold {
				b.transition(Closed)
			}
		}
		return
	}

	switch b.state {
	case HalfOpen:
		b.transition(Open)
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.transition(Open)
		}
	}
}

func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next
	b.epoch++
	b.failures = 0
	b.successes = 0
	b.inflight = 0
	if next == Open {
		b.openedAt = time.Now()
	}

	if b.logger != nil {
		b.logger.Info("circuit state changed",
			zap.String("name", b.name),
			zap.Stringer("from", prev),
			zap.Stringer("to", next),
		)
	}
}

// State reports the current state. An open breaker whose cooldown has
// elapsed still reads Open until the next admission probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
