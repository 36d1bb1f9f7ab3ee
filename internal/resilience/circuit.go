package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned instead of calling a dependency whose breaker is open.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker state. Its numeric value is exported as a gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Settings configure a Breaker. Zero values take the defaults noted per field.
type Settings struct {
	// Name labels metrics and logs. Defaults to "default".
	Name string
	// MinRequests is the sample size before the ratio is evaluated. Defaults to 1.
	MinRequests int
	// FailureRatio trips the breaker once reached. Defaults to 0.5.
	FailureRatio float64
	// OpenFor is the cool-off before a half-open probe. Defaults to 30s.
	OpenFor time.Duration
	// IsFailure classifies call errors. Errors it rejects leave the sample
	// untouched. Nil counts any error except cancellation.
	IsFailure func(error) bool
	Logger    *zerolog.Logger
	Now       func() time.Time
}

type outcome int

const (
	succeeded outcome = iota
	failed
	ignored
)

// counts is the rolling outcome sample of the closed state.
type counts struct {
	ok, failed int
}

func (c counts) total() int { return c.ok + c.failed }

// halve keeps the ratio while letting recent outcomes dominate.
func (c counts) halve() counts {
	return counts{ok: (c.ok + 1) / 2, failed: (c.failed + 1) / 2}
}

// Breaker is a failure-ratio circuit breaker guarding one dependency. Half
// open admits a single probe whose outcome closes or reopens the circuit.
type Breaker struct {
	settings Settings
	logger   zerolog.Logger

	mu       sync.Mutex
	state    State
	sample   counts
	openedAt time.Time
	probing  bool
}

// NewBreaker applies defaults to s and returns a closed breaker.
func NewBreaker(s Settings) *Breaker {
	if s.Name == "" {
		s.Name = "default"
	}
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool { return err != nil && !errors.Is(err, context.Canceled) }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	logger := zerolog.Nop()
	if s.Logger != nil {
		logger = s.Logger.With().Str("breaker", s.Name).Logger()
	}
	return &Breaker{settings: s, logger: logger}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute calls fn unless the circuit is open. A nil Breaker always calls fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if b == nil {
		return fn(ctx)
	}
	if !b.admit(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.record(ctx, b.classify(err))
	return err
}

func (b *Breaker) classify(err error) outcome {
	switch {
	case err == nil:
		return succeeded
	case b.settings.IsFailure(err):
		return failed
	default:
		return ignored
	}
}

func (b *Breaker) admit(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.settings.Now().Sub(b.openedAt) < b.settings.OpenFor {
			return false
		}
		b.transition(ctx, HalfOpen)
	case HalfOpen:
		if b.probing {
			return false
		}
	}
	b.probing = true
	return true
}

func (b *Breaker) record(ctx context.Context, result outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		// An ignored probe proves nothing, so the next call probes again.
		b.probing = false
		switch result {
		case failed:
			b.transition(ctx, Open)
		case succeeded:
			b.transition(ctx, Closed)
		}
		return
	}

	switch result {
	case ignored:
		return
	case failed:
		b.sample.failed++
	default:
		b.sample.ok++
	}
	n := b.sample.total()
	switch {
	case n < b.settings.MinRequests:
	case float64(b.sample.failed)/float64(n) >= b.settings.FailureRatio:
		b.transition(ctx, Open)
	case n > 2*b.settings.MinRequests:
		b.sample = b.sample.halve()
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.sample = counts{}
	if next == Open {
		b.openedAt = b.settings.Now()
	}
	observeTransition(b.settings.Name, prev, next)

	evt := b.logger.Warn().Stringer("from", prev).Stringer("to", next)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker state changed")
}
