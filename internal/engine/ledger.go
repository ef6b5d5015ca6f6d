package engine

import (
	"github.com/shopspring/decimal"

	"github.com/seenimoa/papertrade/pkg/models"
)

// holdingType tags holdings created by delivery fills.
const holdingType = "HLD"

// ApplyFillToPosition folds a trade into its (symbol, product) position and
// moves the notional between available balance and utilized margin.
func ApplyFillToPosition(st *models.State, t models.Trade) {
	id := models.PositionID(t.Symbol, t.ProductType)
	p, ok := st.Positions[id]
	if !ok {
		p = &models.Position{
			ID:          id,
			Symbol:      t.Symbol,
			ProductType: t.ProductType,
		}
		st.Positions[id] = p
	}

	value := notional(t.TradedPrice, t.TradedQty)
	if t.Side == models.Buy {
		p.BuyAvg = weightedAvg(p.BuyAvg, p.BuyQty, t.TradedPrice, t.TradedQty)
		p.BuyQty += t.TradedQty
		p.DayBuyQty += t.TradedQty
		p.BuyVal = add(p.BuyVal, value)
		st.Funds.AvailableBalance = add(st.Funds.AvailableBalance, -value)
		st.Funds.UtilizedMargin = add(st.Funds.UtilizedMargin, value)
	} else {
		p.SellAvg = weightedAvg(p.SellAvg, p.SellQty, t.TradedPrice, t.TradedQty)
		p.SellQty += t.TradedQty
		p.DaySellQty += t.TradedQty
		p.SellVal = add(p.SellVal, value)
		st.Funds.AvailableBalance = add(st.Funds.AvailableBalance, value)
		st.Funds.UtilizedMargin = add(st.Funds.UtilizedMargin, -value)
	}

	p.NetQty = p.BuyQty - p.SellQty
	p.Qty = abs(p.NetQty)
	switch {
	case p.NetQty > 0:
		p.Side = 1
		p.NetAvg = p.BuyAvg
	case p.NetQty < 0:
		p.Side = -1
		p.NetAvg = p.SellAvg
	default:
		p.Side = 0
		p.NetAvg = 0
	}
	p.Realized = realized(p)
	p.UpdatedAt = t.TradedAt
	UpdatePositionLTP(p, t.TradedPrice)
}

// ApplyFillToHolding folds a delivery trade into the symbol's holding. Buys
// create or average into the holding; sells draw down the remaining quantity
// and drop the holding once nothing remains. Sells with no holding are
// ignored here, the position still records them.
func ApplyFillToHolding(st *models.State, t models.Trade, ids IDs) {
	h, ok := st.Holdings[t.Symbol]

	if t.Side == models.Buy {
		if !ok {
			h = &models.Holding{
				ID:          ids.NextHoldingID(),
				Symbol:      t.Symbol,
				HoldingType: holdingType,
				CreatedAt:   t.TradedAt,
			}
			st.Holdings[t.Symbol] = h
		}
		h.CostPrice = weightedAvg(h.CostPrice, h.RemainingQty, t.TradedPrice, t.TradedQty)
		h.Quantity += t.TradedQty
		h.RemainingQty += t.TradedQty
		h.UpdatedAt = t.TradedAt
		UpdateHoldingLTP(h, t.TradedPrice)
		return
	}

	if !ok {
		return
	}
	h.RemainingQty -= t.TradedQty
	if h.RemainingQty <= 0 {
		delete(st.Holdings, t.Symbol)
		return
	}
	h.UpdatedAt = t.TradedAt
	UpdateHoldingLTP(h, t.TradedPrice)
}

// UpdatePositionLTP marks a position to ltp without touching quantities or
// averages.
func UpdatePositionLTP(p *models.Position, ltp float64) {
	p.LTP = ltp
	if p.NetQty == 0 {
		p.Unrealized = 0
	} else {
		p.Unrealized = mulQty(ltp-p.NetAvg, p.NetQty)
	}
	p.PL = add(p.Realized, p.Unrealized)
}

// UpdateHoldingLTP marks a holding to ltp.
func UpdateHoldingLTP(h *models.Holding, ltp float64) {
	h.LTP = ltp
	h.MarketVal = notional(ltp, h.RemainingQty)
	h.PL = mulQty(ltp-h.CostPrice, h.RemainingQty)
}

// RecomputeRealized sets funds realized P&L to the sum across positions.
func RecomputeRealized(st *models.State) {
	total := decimal.Zero
	for _, p := range st.Positions {
		total = total.Add(decimal.NewFromFloat(p.Realized))
	}
	st.Funds.RealizedPnL = total.InexactFloat64()
}

// RecomputeUnrealized sets funds unrealized P&L to the sum across positions.
func RecomputeUnrealized(st *models.State) {
	total := decimal.Zero
	for _, p := range st.Positions {
		total = total.Add(decimal.NewFromFloat(p.Unrealized))
	}
	st.Funds.UnrealizedPnL = total.InexactFloat64()
}

func realized(p *models.Position) float64 {
	matched := min(p.BuyQty, p.SellQty)
	if matched == 0 {
		return 0
	}
	return mulQty(p.SellAvg-p.BuyAvg, matched)
}

// weightedAvg folds addQty units at price into a running average over qty units.
func weightedAvg(avg float64, qty int, price float64, addQty int) float64 {
	total := qty + addQty
	if total == 0 {
		return 0
	}
	sum := decimal.NewFromFloat(avg).Mul(decimal.NewFromInt(int64(qty))).
		Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(addQty))))
	return sum.DivRound(decimal.NewFromInt(int64(total)), 8).InexactFloat64()
}

func notional(price float64, qty int) float64 {
	return mulQty(price, qty)
}

func mulQty(v float64, qty int) float64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(int64(qty))).InexactFloat64()
}

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
