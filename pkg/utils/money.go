// Package utils holds calendar, symbol and money-formatting helpers for the
// Indian cash market.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatINR formats an amount with Indian digit grouping (₹12,34,567.89).
func FormatINR(amount float64) string {
	negative := amount < 0
	amount = math.Round(math.Abs(amount)*100) / 100

	whole := int64(amount)
	paise := int64(math.Round((amount - float64(whole)) * 100))

	out := fmt.Sprintf("₹%s.%02d", groupIndian(whole), paise)
	if negative {
		return "-" + out
	}
	return out
}

// FormatPnL formats a profit or loss with an explicit sign.
func FormatPnL(amount float64) string {
	if amount > 0 {
		return "+" + FormatINR(amount)
	}
	return FormatINR(amount)
}

// FormatPct formats a percentage with sign, e.g. +2.45%.
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// groupIndian groups digits as last three, then pairs (12,34,567).
func groupIndian(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return strings.Join(append(groups, tail), ",")
}
