package quote

import (
	"context"
	"sync"
	"time"

	"github.com/seenimoa/papertrade/pkg/models"
)

// Static serves prices set in memory. It backs offline runs and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote
	batch  int
	now    func() time.Time
}

// NewStatic returns a provider seeded with last prices.
func NewStatic(prices map[string]float64) *Static {
	s := &Static{quotes: make(map[string]models.Quote, len(prices)), batch: 100, now: time.Now}
	for sym, p := range prices {
		s.quotes[sym] = models.Quote{Symbol: sym, LastPrice: p}
	}
	return s
}

// Name returns the provider name.
func (s *Static) Name() string { return "static" }

// MaxBatch returns the configured batch size.
func (s *Static) MaxBatch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batch
}

// SetMaxBatch changes the batch size. Safe to call while fetches run.
func (s *Static) SetMaxBatch(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = n
}

// SetPrice sets a last price with no bar.
func (s *Static) SetPrice(symbol string, price float64) {
	s.SetQuote(models.Quote{Symbol: symbol, LastPrice: price})
}

// SetQuote replaces the stored quote for q.Symbol.
func (s *Static) SetQuote(q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// GetQuotes returns the stored quotes for symbols it knows.
func (s *Static) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			if q.Timestamp.IsZero() {
				q.Timestamp = s.now()
			}
			out[sym] = q
		}
	}
	return out, nil
}
