// Package engine holds the fill-decision and ledger arithmetic of the paper
// trading simulator. Every function here is pure with respect to I/O: it
// reads and mutates a *models.State handed in by the caller, which is
// expected to hold the store lock for the duration of the call.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/papertrade/pkg/models"
)

var (
	// ErrNotPending is returned when a fill is attempted on an order that is
	// no longer PENDING.
	ErrNotPending = errors.New("order is not pending")

	// ErrInvalidPrice is returned for a fill at a non-positive price.
	ErrInvalidPrice = errors.New("fill price must be positive")

	// ErrUnknownOrderType is returned when an order carries a type the
	// engine does not know how to evaluate.
	ErrUnknownOrderType = errors.New("unknown order type")
)

// IDs issues identifiers and timestamps for records created during a fill.
// The state store's transaction satisfies it.
type IDs interface {
	NextTradeID() string
	NextHoldingID() int
	Now() time.Time
}

// ExecuteMarketOrder fills o in full at price: the order moves to TRADED, a
// Trade is appended, and the position, holding (delivery only) and funds are
// updated.
func ExecuteMarketOrder(st *models.State, o *models.Order, price float64, ids IDs) (*models.Trade, error) {
	if !o.Status.CanTransition(models.OrderTraded) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, o.ID, o.Status)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	now := ids.Now()
	o.Status = models.OrderTraded
	o.FilledQty = o.Qty
	o.RemainingQty = 0
	o.TradedPrice = price
	o.UpdatedAt = now

	trade := models.Trade{
		ID:          ids.NextTradeID(),
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		TradedPrice: price,
		TradedQty:   o.FilledQty,
		TradeValue:  notional(price, o.FilledQty),
		Side:        o.Side,
		ProductType: o.ProductType,
		OrderTag:    o.OrderTag,
		TradedAt:    now,
	}
	st.Trades = append(st.Trades, trade)

	ApplyFillToPosition(st, trade)
	if o.ProductType.IsDelivery() {
		ApplyFillToHolding(st, trade, ids)
	}
	RecomputeRealized(st)
	RecomputeUnrealized(st)

	return &trade, nil
}

// Decide reports whether o fills against bar and at what price.
func Decide(o *models.Order, bar models.Bar) (float64, bool, error) {
	buy := o.Side == models.Buy

	switch o.Type {
	case models.Market:
		return bar.LTP, bar.LTP > 0, nil

	case models.Limit:
		if buy {
			if bar.Low <= o.LimitPrice {
				return min(o.LimitPrice, bar.LTP), true, nil
			}
			return 0, false, nil
		}
		if bar.High >= o.LimitPrice {
			return max(o.LimitPrice, bar.LTP), true, nil
		}
		return 0, false, nil

	case models.SLM:
		if buy {
			if bar.High >= o.StopPrice {
				return max(o.StopPrice, bar.LTP), true, nil
			}
			return 0, false, nil
		}
		if bar.Low <= o.StopPrice {
			return min(o.StopPrice, bar.LTP), true, nil
		}
		return 0, false, nil

	case models.SL:
		if buy {
			if bar.High >= o.StopPrice && bar.Low <= o.LimitPrice {
				return min(o.LimitPrice, bar.LTP), true, nil
			}
			return 0, false, nil
		}
		if bar.Low <= o.StopPrice && bar.High >= o.LimitPrice {
			return max(o.LimitPrice, bar.LTP), true, nil
		}
		return 0, false, nil
	}

	return 0, false, fmt.Errorf("%w: %q", ErrUnknownOrderType, o.Type)
}

// CheckLimitOrder evaluates a pending order against bar and fills it when the
// decision says so. A nil trade with a nil error means the order stays
// PENDING untouched.
func CheckLimitOrder(st *models.State, o *models.Order, bar models.Bar, ids IDs) (*models.Trade, error) {
	if o.Status != models.OrderPending {
		return nil, nil
	}
	price, fill, err := Decide(o, bar)
	if err != nil {
		return nil, err
	}
	if !fill {
		return nil, nil
	}
	return ExecuteMarketOrder(st, o, price, ids)
}
