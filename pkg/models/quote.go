// Package models defines the records shared by the paper trading engine:
// orders, trades, positions, holdings, funds, the persisted state root and
// the quotes consumed from external price sources.
package models

import "time"

// Quote is a price snapshot for one symbol. LastPrice is always set by a
// provider; High and Low describe the bar the price belongs to and may be
// zero when the provider does not supply them.
type Quote struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	Open      float64   `json:"open,omitempty"`
	High      float64   `json:"high,omitempty"`
	Low       float64   `json:"low,omitempty"`
	PrevClose float64   `json:"prev_close,omitempty"`
	Volume    int64     `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar returns the ltp/high/low triple used for pending-order evaluation.
// Missing high or low collapse to the last price.
func (q Quote) Bar() Bar {
	b := Bar{LTP: q.LastPrice, High: q.High, Low: q.Low}
	if b.High <= 0 {
		b.High = q.LastPrice
	}
	if b.Low <= 0 {
		b.Low = q.LastPrice
	}
	return b
}

// Bar is the price range an order is evaluated against.
type Bar struct {
	LTP  float64 `json:"ltp"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}
