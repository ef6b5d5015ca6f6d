package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seenimoa/papertrade/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type fakeProvider struct {
	mu      sync.Mutex
	batch   int
	calls   [][]string
	failFor string
	err     error
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) MaxBatch() int { return f.batch }

func (f *fakeProvider) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), symbols...))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.Quote)
	for _, s := range symbols {
		if s == f.failFor {
			return nil, errors.New("batch exploded")
		}
		out[s] = models.Quote{Symbol: s, LastPrice: float64(len(s))}
	}
	return out, nil
}

type countingObserver struct {
	mu    sync.Mutex
	calls int
	errs  int
}

func (o *countingObserver) ObserveQuoteFetch(_ string, _ int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err != nil {
		o.errs++
	}
}

// ════════════════════════════════════════════════════════════════════
// Batching
// ════════════════════════════════════════════════════════════════════

func TestChunk(t *testing.T) {
	tests := []struct {
		in   []string
		size int
		want [][]string
	}{
		{nil, 2, nil},
		{[]string{"a", "b", "c"}, 2, [][]string{{"a", "b"}, {"c"}}},
		{[]string{"a", "b"}, 5, [][]string{{"a", "b"}}},
		{[]string{"a", "b"}, 0, [][]string{{"a", "b"}}},
	}
	for _, tt := range tests {
		if got := Chunk(tt.in, tt.size); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Chunk(%v, %d) = %v, want %v", tt.in, tt.size, got, tt.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"A", "", "B", "A", "C", "B"})
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dedupe = %v, want %v", got, want)
	}
}

func TestFetcher_ChunksToMaxBatch(t *testing.T) {
	p := &fakeProvider{batch: 2}
	obs := &countingObserver{}
	f := NewFetcher(p, nil, obs)

	quotes, err := f.Fetch(context.Background(), []string{"A", "BB", "CCC", "A", "DDDD", "EEEEE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 5 {
		t.Errorf("expected 5 quotes, got %d", len(quotes))
	}
	if len(p.calls) != 3 {
		t.Errorf("expected 3 provider calls, got %d", len(p.calls))
	}
	for _, c := range p.calls {
		if len(c) > 2 {
			t.Errorf("batch of %d exceeds max batch", len(c))
		}
	}
	if obs.calls != 3 {
		t.Errorf("observer saw %d calls", obs.calls)
	}
}

func TestFetcher_SkipsFailedBatch(t *testing.T) {
	p := &fakeProvider{batch: 1, failFor: "BAD"}
	obs := &countingObserver{}
	f := NewFetcher(p, nil, obs)

	quotes, err := f.Fetch(context.Background(), []string{"GOOD", "BAD", "FINE"})
	if err != nil {
		t.Fatalf("a failed batch must not fail the fetch: %v", err)
	}
	if _, ok := quotes["BAD"]; ok {
		t.Error("failed symbol should be absent")
	}
	if quotes["GOOD"].LastPrice != 4 || quotes["FINE"].LastPrice != 4 {
		t.Errorf("unexpected quotes: %+v", quotes)
	}
	if obs.errs != 1 {
		t.Errorf("observer errors = %d, want 1", obs.errs)
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	f := NewFetcher(NewStatic(map[string]float64{"X": 1}), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, []string{"X"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetcher_Quote(t *testing.T) {
	f := NewFetcher(NewStatic(map[string]float64{"X": 100, "Z": 0}), nil, nil)

	q, err := f.Quote(context.Background(), "X")
	if err != nil || q.LastPrice != 100 {
		t.Errorf("Quote(X) = %+v, %v", q, err)
	}
	if _, err := f.Quote(context.Background(), "Y"); !errors.Is(err, ErrNoQuote) {
		t.Errorf("expected ErrNoQuote for unknown symbol, got %v", err)
	}
	if _, err := f.Quote(context.Background(), "Z"); !errors.Is(err, ErrNoQuote) {
		t.Errorf("expected ErrNoQuote for zero price, got %v", err)
	}
}

func TestFetcher_Cache(t *testing.T) {
	fp := &fakeProvider{batch: 10}
	f := NewFetcher(fp, nil, nil)
	f.Cache = NewCache(time.Minute)

	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f.Cache.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, err := f.Quote(ctx, "AAA"); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	got, err := f.Fetch(ctx, []string{"AAA", "BB"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Fetch returned %d quotes, want 2", len(got))
	}
	// AAA came from the cache, so only BB reached the provider.
	if len(fp.calls) != 2 || !reflect.DeepEqual(fp.calls[1], []string{"BB"}) {
		t.Errorf("provider calls = %v", fp.calls)
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := f.Cache.Get("AAA"); ok {
		t.Error("entry should have expired")
	}
	if _, err := f.Fetch(ctx, []string{"AAA"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(fp.calls) != 3 {
		t.Errorf("expired entry should be refetched, calls = %v", fp.calls)
	}
	// Cleanup ran before the last fetch and dropped BB.
	if n := f.Cache.Len(); n != 1 {
		t.Errorf("cache holds %d entries, want 1", n)
	}

	f.Cache.Invalidate("AAA")
	if _, ok := f.Cache.Get("AAA"); ok {
		t.Error("invalidated entry still cached")
	}
}

// ════════════════════════════════════════════════════════════════════
// Providers
// ════════════════════════════════════════════════════════════════════

func TestYahoo_GetQuotes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("symbols")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"quoteResponse":{"result":[
			{"symbol":"SBIN.NS","regularMarketPrice":812.5,"regularMarketDayHigh":820,"regularMarketDayLow":805,"regularMarketTime":1767225600},
			{"symbol":"^NSEI","regularMarketPrice":24000},
			{"symbol":"JUNK.NS","regularMarketPrice":0}
		],"error":null}}`)
	}))
	defer srv.Close()

	y := NewYahoo(time.Second)
	y.BaseURL = srv.URL

	quotes, err := y.GetQuotes(context.Background(), []string{"NSE:SBIN-EQ", "NIFTY", "JUNK"})
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "SBIN.NS,^NSEI,JUNK.NS" {
		t.Errorf("symbols query = %q", gotQuery)
	}
	sbin, ok := quotes["NSE:SBIN-EQ"]
	if !ok {
		t.Fatalf("quotes not keyed by requested symbol: %+v", quotes)
	}
	if sbin.LastPrice != 812.5 || sbin.High != 820 || sbin.Low != 805 {
		t.Errorf("unexpected SBIN quote: %+v", sbin)
	}
	if quotes["NIFTY"].LastPrice != 24000 {
		t.Errorf("index quote missing: %+v", quotes)
	}
	if _, ok := quotes["JUNK"]; ok {
		t.Error("zero-priced result should be dropped")
	}
}

func TestYahoo_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	y := NewYahoo(time.Second)
	y.BaseURL = srv.URL

	_, err := y.GetQuotes(context.Background(), []string{"SBIN"})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected ErrHTTP 429, got %v", err)
	}
}

func TestYahoo_RejectsOversizedBatch(t *testing.T) {
	y := NewYahoo(time.Second)
	symbols := make([]string, YahooMaxBatch+1)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%d", i)
	}
	if _, err := y.GetQuotes(context.Background(), symbols); err == nil {
		t.Error("expected batch limit error")
	}
}

func TestScreener_GetQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/company/TCS/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><ul id="top-ratios">
			<li><span class="name">Market Cap</span><span class="number">12,34,567</span></li>
			<li><span class="name">Current Price</span><span class="value">₹ <span class="number">3,912.40</span></span></li>
			<li><span class="name">High / Low</span><span class="number">4,500</span> / <span class="number">3,000</span></li>
		</ul></body></html>`)
	}))
	defer srv.Close()

	s := NewScreener(time.Second)
	s.BaseURL = srv.URL

	quotes, err := s.GetQuotes(context.Background(), []string{"NSE:TCS-EQ"})
	if err != nil {
		t.Fatal(err)
	}
	if got := quotes["NSE:TCS-EQ"].LastPrice; got != 3912.40 {
		t.Errorf("price = %v, want 3912.40", got)
	}

	if _, err := s.GetQuotes(context.Background(), []string{"NOPE"}); err == nil {
		t.Error("expected error for unknown company")
	}
}

func TestParseScreenerNumber(t *testing.T) {
	tests := map[string]float64{
		"3,912.40":  3912.40,
		" ₹ 812 ":   812,
		"12.5%":     12.5,
		"not a num": 0,
	}
	for in, want := range tests {
		if got := parseScreenerNumber(in); got != want {
			t.Errorf("parseScreenerNumber(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	for _, kind := range []string{"yahoo", "screener", "static"} {
		p, err := NewProvider(kind, time.Second, nil)
		if err != nil || p.Name() != kind {
			t.Errorf("NewProvider(%q) = %v, %v", kind, p, err)
		}
	}
	if _, err := NewProvider("bloomberg", time.Second, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

// ════════════════════════════════════════════════════════════════════
// Guard
// ════════════════════════════════════════════════════════════════════

func TestGuard_OpensAfterFailures(t *testing.T) {
	p := &fakeProvider{batch: 10, err: errors.New("down")}
	var states []gobreaker.State
	g := NewGuard(p, GuardSettings{
		MinRequests:   3,
		FailureRatio:  0.5,
		OpenTimeout:   time.Minute,
		OnStateChange: func(_ string, s gobreaker.State) { states = append(states, s) },
	}, nil)

	for i := 0; i < 3; i++ {
		if _, err := g.GetQuotes(context.Background(), []string{"X"}); err == nil {
			t.Fatal("expected provider error")
		}
	}
	if g.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", g.State())
	}

	_, err := g.GetQuotes(context.Background(), []string{"X"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable while open, got %v", err)
	}
	if len(p.calls) != 3 {
		t.Errorf("provider called %d times, open breaker must short-circuit", len(p.calls))
	}
	if len(states) != 1 || states[0] != gobreaker.StateOpen {
		t.Errorf("state changes = %v", states)
	}
}

func TestGuard_PassesThrough(t *testing.T) {
	g := NewGuard(NewStatic(map[string]float64{"X": 5}), GuardSettings{RatePerSec: 1000, Burst: 10}, nil)
	if g.Name() != "static" || g.MaxBatch() != 100 {
		t.Errorf("guard should expose inner name and batch")
	}
	quotes, err := g.GetQuotes(context.Background(), []string{"X"})
	if err != nil || quotes["X"].LastPrice != 5 {
		t.Errorf("GetQuotes = %+v, %v", quotes, err)
	}
}

func TestStatic_SetQuote(t *testing.T) {
	s := NewStatic(nil)
	s.SetQuote(models.Quote{Symbol: "X", LastPrice: 95.5, High: 96, Low: 94})

	quotes, _ := s.GetQuotes(context.Background(), []string{"X", "Y"})
	if len(quotes) != 1 {
		t.Fatalf("expected only X, got %+v", quotes)
	}
	bar := quotes["X"].Bar()
	if bar.LTP != 95.5 || bar.High != 96 || bar.Low != 94 {
		t.Errorf("bar = %+v", bar)
	}
	if quotes["X"].Timestamp.IsZero() {
		t.Error("static quotes should be timestamped")
	}
}

func TestStatic_SetMaxBatchDuringFetch(t *testing.T) {
	s := NewStatic(map[string]float64{"A": 1, "B": 2, "C": 3})
	f := NewFetcher(s, nil, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetMaxBatch(i%3 + 1)
		}()
		go func() {
			defer wg.Done()
			if _, err := f.Fetch(context.Background(), []string{"A", "B", "C"}); err != nil {
				t.Errorf("Fetch: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := s.MaxBatch(); n < 1 || n > 3 {
		t.Errorf("MaxBatch = %d", n)
	}
}
