package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

// YahooMaxBatch is the number of symbols sent per v7 quote request.
const YahooMaxBatch = 50

const yahooBaseURL = "https://query1.finance.yahoo.com"

// Yahoo fetches quotes from the Yahoo Finance v7 quote endpoint.
type Yahoo struct {
	BaseURL string
	client  *http.Client
}

// NewYahoo creates a Yahoo Finance provider.
func NewYahoo(timeout time.Duration) *Yahoo {
	return &Yahoo{BaseURL: yahooBaseURL, client: newHTTPClient(timeout)}
}

// Name returns the provider name.
func (y *Yahoo) Name() string { return "yahoo" }

// MaxBatch returns YahooMaxBatch.
func (y *Yahoo) MaxBatch() int { return YahooMaxBatch }

type yfQuoteResponse struct {
	QuoteResponse struct {
		Result []yfQuoteResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"quoteResponse"`
}

type yfQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketOpen          float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// GetQuotes requests all symbols in one call.
func (y *Yahoo) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	if len(symbols) > YahooMaxBatch {
		return nil, fmt.Errorf("yahoo: %d symbols exceeds batch limit %d", len(symbols), YahooMaxBatch)
	}

	// Yahoo answers in its own symbol form; map back to what the caller asked for.
	requested := make(map[string]string, len(symbols))
	yfSymbols := make([]string, 0, len(symbols))
	for _, s := range symbols {
		yf := utils.ToYahooSymbol(s)
		requested[yf] = s
		yfSymbols = append(yfSymbols, yf)
	}

	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", strings.TrimRight(y.BaseURL, "/"),
		url.QueryEscape(strings.Join(yfSymbols, ",")))
	body, err := doGet(ctx, y.client, u, "application/json")
	if err != nil {
		return nil, fmt.Errorf("yahoo quote: %w", err)
	}
	defer body.Close()

	var resp yfQuoteResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse yahoo quote: %w", err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %s", resp.QuoteResponse.Error.Description)
	}

	out := make(map[string]models.Quote, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		sym, ok := requested[r.Symbol]
		if !ok || r.RegularMarketPrice <= 0 {
			continue
		}
		out[sym] = models.Quote{
			Symbol:    sym,
			LastPrice: r.RegularMarketPrice,
			Open:      r.RegularMarketOpen,
			High:      r.RegularMarketDayHigh,
			Low:       r.RegularMarketDayLow,
			PrevClose: r.RegularMarketPreviousClose,
			Volume:    r.RegularMarketVolume,
			Timestamp: time.Unix(r.RegularMarketTime, 0),
		}
	}
	return out, nil
}
