package utils

import "testing"

func TestFormatINR(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "₹0.00"},
		{999, "₹999.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},
		{1234567.89, "₹12,34,567.89"},
		{-1500.5, "-₹1,500.50"},
		{99.999, "₹100.00"},
	}

	for _, tt := range tests {
		if got := FormatINR(tt.input); got != tt.expected {
			t.Errorf("FormatINR(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestFormatPnL(t *testing.T) {
	if got := FormatPnL(100); got != "+₹100.00" {
		t.Errorf("FormatPnL(100) = %q", got)
	}
	if got := FormatPnL(-100); got != "-₹100.00" {
		t.Errorf("FormatPnL(-100) = %q", got)
	}
	if got := FormatPnL(0); got != "₹0.00" {
		t.Errorf("FormatPnL(0) = %q", got)
	}
}

func TestFormatPct(t *testing.T) {
	if got := FormatPct(2.456); got != "+2.46%" {
		t.Errorf("FormatPct(2.456) = %q", got)
	}
	if got := FormatPct(-1.2); got != "-1.20%" {
		t.Errorf("FormatPct(-1.2) = %q", got)
	}
}
