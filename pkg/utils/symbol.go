package utils

import (
	"strings"
)

// Symbol is an exchange-qualified instrument, e.g. NSE:SBIN-EQ.
type Symbol struct {
	Exchange string
	Ticker   string
	Series   string
}

// String returns the canonical EXCHANGE:TICKER-SERIES form.
func (s Symbol) String() string {
	out := s.Exchange + ":" + s.Ticker
	if s.Series != "" {
		out += "-" + s.Series
	}
	return out
}

// IsIndex reports whether the symbol names an index rather than a stock.
func (s Symbol) IsIndex() bool {
	return s.Series == "INDEX"
}

var tickerAliases = map[string]string{
	"RIL":       "RELIANCE",
	"INFOSYS":   "INFY",
	"SBI":       "SBIN",
	"AIRTEL":    "BHARTIARTL",
	"HUL":       "HINDUNILVR",
	"L&T":       "LT",
	"KOTAK":     "KOTAKBANK",
	"NIFTY":     "NIFTY50",
	"NIFTY 50":  "NIFTY50",
	"BANKNIFTY": "NIFTYBANK",
}

var yahooIndices = map[string]string{
	"NIFTY50":   "^NSEI",
	"NIFTYBANK": "^NSEBANK",
	"SENSEX":    "^BSESN",
	"NIFTYIT":   "^CNXIT",
	"FINNIFTY":  "^CNXFIN",
}

// ParseSymbol accepts "NSE:SBIN-EQ", "SBIN-EQ", "SBIN", "sbi" or Yahoo's
// "SBIN.NS" and returns the exchange-qualified form. Bare tickers default to
// NSE equity.
func ParseSymbol(raw string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "$")

	sym := Symbol{Exchange: "NSE"}
	if ex, rest, ok := strings.Cut(s, ":"); ok {
		sym.Exchange = ex
		s = rest
	}
	switch {
	case strings.HasSuffix(s, ".NS"):
		s = strings.TrimSuffix(s, ".NS")
	case strings.HasSuffix(s, ".BO"):
		sym.Exchange = "BSE"
		s = strings.TrimSuffix(s, ".BO")
	}

	if i := strings.LastIndex(s, "-"); i > 0 {
		sym.Series = s[i+1:]
		s = s[:i]
	}
	if alias, ok := tickerAliases[s]; ok {
		s = alias
	}
	sym.Ticker = s

	if sym.Series == "" {
		if _, ok := yahooIndices[s]; ok {
			sym.Series = "INDEX"
		} else {
			sym.Series = "EQ"
		}
	}
	return sym
}

// NormalizeSymbol returns the canonical form of a user supplied symbol.
func NormalizeSymbol(raw string) string {
	return ParseSymbol(raw).String()
}

// ToYahooSymbol converts a symbol to Yahoo Finance's form (SBIN.NS, ^NSEI).
func ToYahooSymbol(raw string) string {
	sym := ParseSymbol(raw)
	if idx, ok := yahooIndices[sym.Ticker]; ok && sym.IsIndex() {
		return idx
	}
	if sym.Exchange == "BSE" {
		return sym.Ticker + ".BO"
	}
	return sym.Ticker + ".NS"
}
