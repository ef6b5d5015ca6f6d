package store

import (
	"errors"

	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

// RolloverResult describes what an end-of-day rollover changed.
type RolloverResult struct {
	Applied bool     `json:"applied"`
	Date    string   `json:"date"`
	Closed  []string `json:"closed_positions,omitempty"`
	Expired []string `json:"expired_orders,omitempty"`
}

// ResetDailyPositions performs the end-of-day rollover for date
// (YYYY-MM-DD). Open intraday positions have their P&L folded into realized
// funds and are dropped; every other position carries its day quantities
// forward. PENDING DAY orders placed before date expire. Calling it again for
// the same date changes nothing.
func (s *Store) ResetDailyPositions(date string) (RolloverResult, error) {
	res := RolloverResult{Date: date}

	// Every façade call lands here; skip the write lock once today is done.
	done := false
	if err := s.View(func(st *models.State) error {
		done = st.LastTradingDate != nil && *st.LastTradingDate == date
		return nil
	}); err != nil {
		return res, err
	}
	if done {
		return res, nil
	}

	err := s.Update(func(tx *Tx) error {
		st := tx.State
		if st.LastTradingDate != nil && *st.LastTradingDate == date {
			return errNoop
		}

		for id, p := range st.Positions {
			if p.ProductType.IsIntraday() && !p.IsFlat() {
				st.Funds.RealizedPnL += p.PL
				st.Funds.UnrealizedPnL -= p.Unrealized
				delete(st.Positions, id)
				res.Closed = append(res.Closed, id)
				continue
			}
			p.CfBuyQty += p.DayBuyQty
			p.CfSellQty += p.DaySellQty
			p.DayBuyQty = 0
			p.DaySellQty = 0
		}

		for id, o := range st.Orders {
			if o.Validity != models.ValidityDay || !o.Status.CanTransition(models.OrderExpired) {
				continue
			}
			if utils.TradingDate(o.OrderDateTime) >= date {
				continue
			}
			o.Status = models.OrderExpired
			o.Message = "expired at end of day"
			o.UpdatedAt = tx.Now()
			res.Expired = append(res.Expired, id)
		}

		d := date
		st.LastTradingDate = &d
		res.Applied = true
		return nil
	})
	if errors.Is(err, errNoop) {
		return RolloverResult{Date: date}, nil
	}
	if err != nil {
		return RolloverResult{Date: date}, err
	}

	if res.Applied {
		s.log.Info("rollover applied", "date", date, "closed", len(res.Closed), "expired", len(res.Expired))
	}
	return res, nil
}
