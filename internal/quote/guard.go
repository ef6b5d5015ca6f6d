package quote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/seenimoa/papertrade/pkg/models"
)

// GuardSettings configures Guard.
type GuardSettings struct {
	// RatePerSec caps provider calls per second. Zero disables limiting.
	RatePerSec float64
	Burst      int

	// The breaker opens once MinRequests calls in an Interval window fail
	// at FailureRatio or worse, and probes again after OpenTimeout.
	FailureRatio float64
	MinRequests  uint32
	Interval     time.Duration
	OpenTimeout  time.Duration

	// OnStateChange is told about breaker transitions.
	OnStateChange func(name string, state gobreaker.State)
}

// Guard wraps a Provider with a token-bucket rate limit and a circuit breaker.
type Guard struct {
	inner   Provider
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

// NewGuard wraps p.
func NewGuard(p Provider, st GuardSettings, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	ratio := st.FailureRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	minReq := st.MinRequests
	if minReq == 0 {
		minReq = 5
	}
	timeout := st.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &Guard{inner: p}
	if st.RatePerSec > 0 {
		burst := st.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(st.RatePerSec), burst)
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    st.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			r := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minReq && r >= ratio
		},
		IsSuccessful: func(err error) bool {
			// cancellation is not the provider's fault
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("quote provider breaker state changed", "provider", name, "from", from.String(), "to", to.String())
			if st.OnStateChange != nil {
				st.OnStateChange(name, to)
			}
		},
	})
	return g
}

// Name returns the wrapped provider's name.
func (g *Guard) Name() string { return g.inner.Name() }

// MaxBatch returns the wrapped provider's batch size.
func (g *Guard) MaxBatch() int { return g.inner.MaxBatch() }

// State reports the breaker state.
func (g *Guard) State() gobreaker.State { return g.cb.State() }

// GetQuotes waits for a rate token, then calls the wrapped provider through
// the breaker.
func (g *Guard) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.GetQuotes(ctx, symbols)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return res.(map[string]models.Quote), nil
}
