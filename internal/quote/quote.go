// Package quote adapts external price sources to the paper trading engine.
//
// A Provider returns last-traded prices (and, when available, the day's
// high/low) for a batch of symbols. Fetcher takes care of chunking symbol
// sets to the provider's batch limit and fetching chunks concurrently.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/papertrade/pkg/models"
)

// Provider is an external source of quotes.
type Provider interface {
	Name() string
	// GetQuotes returns quotes keyed by the requested symbol. Symbols the
	// source does not know are omitted rather than failing the call.
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	// MaxBatch is the largest number of symbols one GetQuotes call accepts.
	MaxBatch() int
}

var (
	// ErrNoQuote is returned when a provider has no usable price for a symbol.
	ErrNoQuote = errors.New("no quote available")

	// ErrUnavailable is returned while a provider's circuit breaker is open.
	ErrUnavailable = errors.New("quote provider unavailable")
)

// ErrHTTP is returned for non-2xx responses from an HTTP provider.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Observer receives one call per provider round trip.
type Observer interface {
	ObserveQuoteFetch(provider string, symbols int, d time.Duration, err error)
}

// Fetcher fetches arbitrarily large symbol sets from a Provider.
type Fetcher struct {
	Provider Provider
	Log      *slog.Logger
	Observer Observer
	// Concurrency bounds in-flight batches. Zero means 4.
	Concurrency int
	// Cache, if set, answers repeat requests within its TTL.
	Cache *Cache
}

// NewFetcher returns a Fetcher for p.
func NewFetcher(p Provider, log *slog.Logger, obs Observer) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{Provider: p, Log: log.With("component", "quote", "provider", p.Name()), Observer: obs}
}

// Quote returns the quote for a single symbol.
func (f *Fetcher) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if f.Cache != nil {
		if q, ok := f.Cache.Get(symbol); ok {
			return q, nil
		}
	}
	quotes, err := f.call(ctx, []string{symbol})
	if err != nil {
		return models.Quote{}, err
	}
	q, ok := quotes[symbol]
	if !ok || q.LastPrice <= 0 {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	if f.Cache != nil {
		f.Cache.Set(symbol, q)
	}
	return q, nil
}

// Fetch returns quotes for symbols, deduplicated and split into batches of
// at most MaxBatch. A failed batch is logged and skipped; the returned error
// is non-nil only when ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	missing := Dedupe(symbols)
	if f.Cache != nil {
		f.Cache.Cleanup()
		n := 0
		for _, sym := range missing {
			if q, ok := f.Cache.Get(sym); ok {
				out[sym] = q
				continue
			}
			missing[n] = sym
			n++
		}
		missing = missing[:n]
	}
	batches := Chunk(missing, f.Provider.MaxBatch())
	if len(batches) == 0 {
		return out, nil
	}

	limit := f.Concurrency
	if limit <= 0 {
		limit = 4
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, batch := range batches {
		g.Go(func() error {
			quotes, err := f.call(gctx, batch)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				f.Log.Warn("quote batch failed, skipping", "symbols", len(batch), "error", err)
				return nil
			}
			mu.Lock()
			for sym, q := range quotes {
				if q.LastPrice > 0 {
					out[sym] = q
					if f.Cache != nil {
						f.Cache.Set(sym, q)
					}
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func (f *Fetcher) call(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	start := time.Now()
	quotes, err := f.Provider.GetQuotes(ctx, symbols)
	if f.Observer != nil {
		f.Observer.ObserveQuoteFetch(f.Provider.Name(), len(symbols), time.Since(start), err)
	}
	return quotes, err
}

// Dedupe drops empty and repeated symbols, preserving first-seen order.
func Dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Chunk splits symbols into slices of at most size elements.
func Chunk(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var out [][]string
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		out = append(out, symbols[:n:n])
		symbols = symbols[n:]
	}
	return out
}

// NewProvider builds a provider by name: "yahoo", "screener" or "static".
func NewProvider(kind string, timeout time.Duration, prices map[string]float64) (Provider, error) {
	switch kind {
	case "yahoo", "":
		return NewYahoo(timeout), nil
	case "screener":
		return NewScreener(timeout), nil
	case "static":
		return NewStatic(prices), nil
	}
	return nil, fmt.Errorf("unknown quote provider %q", kind)
}
