package quote

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

const screenerBaseURL = "https://www.screener.in"

// Screener scrapes the current price from Screener.in company pages. It has
// no batch endpoint, so every symbol costs one page fetch.
type Screener struct {
	BaseURL string
	client  *http.Client
	now     func() time.Time
}

// NewScreener creates a Screener.in provider.
func NewScreener(timeout time.Duration) *Screener {
	return &Screener{BaseURL: screenerBaseURL, client: newHTTPClient(timeout), now: time.Now}
}

// Name returns the provider name.
func (s *Screener) Name() string { return "screener" }

// MaxBatch is 1; the Fetcher parallelises page fetches.
func (s *Screener) MaxBatch() int { return 1 }

// GetQuotes fetches each symbol's page in turn.
func (s *Screener) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	for _, sym := range symbols {
		q, err := s.quote(ctx, sym)
		if err != nil {
			return out, err
		}
		out[sym] = q
	}
	return out, nil
}

func (s *Screener) quote(ctx context.Context, symbol string) (models.Quote, error) {
	ticker := utils.ParseSymbol(symbol).Ticker
	doc, err := s.fetchPage(ctx, ticker)
	if err != nil {
		return models.Quote{}, err
	}

	q := models.Quote{Symbol: symbol, Timestamp: s.now()}
	doc.Find("#top-ratios li").Each(func(_ int, sel *goquery.Selection) {
		// "High / Low" on this page is the 52 week range, not the day's bar.
		name := strings.ToLower(strings.TrimSpace(sel.Find(".name").Text()))
		if strings.Contains(name, "current price") {
			q.LastPrice = parseScreenerNumber(sel.Find(".number").First().Text())
		}
	})
	if q.LastPrice <= 0 {
		return models.Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}

func (s *Screener) fetchPage(ctx context.Context, ticker string) (*goquery.Document, error) {
	base := strings.TrimRight(s.BaseURL, "/")
	body, err := doGet(ctx, s.client, fmt.Sprintf("%s/company/%s/consolidated/", base, ticker), "text/html")
	if err != nil {
		// standalone page when there is no consolidated one
		body, err = doGet(ctx, s.client, fmt.Sprintf("%s/company/%s/", base, ticker), "text/html")
		if err != nil {
			return nil, fmt.Errorf("screener.in %s: %w", ticker, err)
		}
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse screener HTML: %w", err)
	}
	return doc, nil
}

func parseScreenerNumber(s string) float64 {
	s = strings.NewReplacer(",", "", "₹", "", "%", "").Replace(s)
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return val
}
