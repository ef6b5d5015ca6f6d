package models

import "time"

// SchemaVersion is written into every persisted State.
const SchemaVersion = 1

// State is the aggregate root persisted as a single JSON document.
type State struct {
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Funds           Funds                `json:"funds"`
	Orders          map[string]*Order    `json:"orders"`
	Trades          []Trade              `json:"trades"`
	Positions       map[string]*Position `json:"positions"`
	Holdings        map[string]*Holding  `json:"holdings"`
	OrderCounter    int                  `json:"order_counter"`
	TradeCounter    int                  `json:"trade_counter"`
	HoldingCounter  int                  `json:"holding_counter"`
	LastTradingDate *string              `json:"last_trading_date"`
}

// NewState returns a fresh ledger seeded with initialBalance.
func NewState(initialBalance float64, now time.Time) *State {
	return &State{
		Version:   SchemaVersion,
		CreatedAt: now,
		UpdatedAt: now,
		Funds: Funds{
			TotalBalance:     initialBalance,
			AvailableBalance: initialBalance,
		},
		Orders:    make(map[string]*Order),
		Trades:    []Trade{},
		Positions: make(map[string]*Position),
		Holdings:  make(map[string]*Holding),
	}
}

// Normalize fills in containers a decoded document may have omitted and
// drops null book entries.
func (s *State) Normalize() {
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	if s.Orders == nil {
		s.Orders = make(map[string]*Order)
	}
	if s.Trades == nil {
		s.Trades = []Trade{}
	}
	if s.Positions == nil {
		s.Positions = make(map[string]*Position)
	}
	if s.Holdings == nil {
		s.Holdings = make(map[string]*Holding)
	}
	for k, v := range s.Orders {
		if v == nil {
			delete(s.Orders, k)
		}
	}
	for k, v := range s.Positions {
		if v == nil {
			delete(s.Positions, k)
		}
	}
	for k, v := range s.Holdings {
		if v == nil {
			delete(s.Holdings, k)
		}
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	out := *s
	out.Orders = make(map[string]*Order, len(s.Orders))
	for k, v := range s.Orders {
		o := *v
		out.Orders[k] = &o
	}
	out.Trades = make([]Trade, len(s.Trades))
	copy(out.Trades, s.Trades)
	out.Positions = make(map[string]*Position, len(s.Positions))
	for k, v := range s.Positions {
		p := *v
		out.Positions[k] = &p
	}
	out.Holdings = make(map[string]*Holding, len(s.Holdings))
	for k, v := range s.Holdings {
		h := *v
		out.Holdings[k] = &h
	}
	if s.LastTradingDate != nil {
		d := *s.LastTradingDate
		out.LastTradingDate = &d
	}
	return &out
}
