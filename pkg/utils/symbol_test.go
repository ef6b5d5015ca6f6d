package utils

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NSE:SBIN-EQ", "NSE:SBIN-EQ"},
		{"sbin", "NSE:SBIN-EQ"},
		{" sbi ", "NSE:SBIN-EQ"},
		{"$TCS", "NSE:TCS-EQ"},
		{"RIL", "NSE:RELIANCE-EQ"},
		{"INFY.NS", "NSE:INFY-EQ"},
		{"TCS.BO", "BSE:TCS-EQ"},
		{"NIFTY", "NSE:NIFTY50-INDEX"},
		{"NSE:NIFTYBANK-INDEX", "NSE:NIFTYBANK-INDEX"},
		{"BSE:RELIANCE-A", "BSE:RELIANCE-A"},
		{"X", "NSE:X-EQ"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeSymbol(tt.input); got != tt.expected {
				t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToYahooSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NSE:SBIN-EQ", "SBIN.NS"},
		{"RIL", "RELIANCE.NS"},
		{"BSE:TCS-A", "TCS.BO"},
		{"NIFTY", "^NSEI"},
		{"NSE:NIFTYBANK-INDEX", "^NSEBANK"},
		{"TCS.NS", "TCS.NS"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToYahooSymbol(tt.input); got != tt.expected {
				t.Errorf("ToYahooSymbol(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSymbolIsIndex(t *testing.T) {
	if !ParseSymbol("BANKNIFTY").IsIndex() {
		t.Error("BANKNIFTY should be an index")
	}
	if ParseSymbol("SBIN").IsIndex() {
		t.Error("SBIN should not be an index")
	}
}
