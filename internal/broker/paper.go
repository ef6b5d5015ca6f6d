package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/papertrade/internal/engine"
	"github.com/seenimoa/papertrade/internal/metrics"
	"github.com/seenimoa/papertrade/internal/quote"
	"github.com/seenimoa/papertrade/internal/store"
	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Paper Trading Simulator
// ════════════════════════════════════════════════════════════════════

// multiOrderLimit bounds concurrent placements in PlaceMultiOrder. Quote
// fetches overlap; ledger writes still serialise on the store.
const multiOrderLimit = 4

// PaperBroker simulates an exchange account on top of a persisted ledger.
// Every exported operation lazily loads the state file and applies the
// end-of-day rollover for the current IST trading date before doing its work.
type PaperBroker struct {
	store   *store.Store
	quotes  *quote.Fetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	journal TradeSink
	notify  Notifier
	now     func() time.Time

	loopMu sync.Mutex
	stop   context.CancelFunc
	done   chan struct{}
}

// Options carries the optional collaborators of a PaperBroker.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Journal  TradeSink
	Notifier Notifier
	// Clock defaults to time.Now. The store should share it.
	Clock func() time.Time
}

// NewPaperBroker creates a paper broker over st, pricing through quotes.
func NewPaperBroker(st *store.Store, quotes *quote.Fetcher, opts Options) *PaperBroker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &PaperBroker{
		store:   st,
		quotes:  quotes,
		log:     log.With("component", "broker"),
		metrics: opts.Metrics,
		journal: opts.Journal,
		notify:  opts.Notifier,
		now:     now,
	}
}

// Name returns "paper".
func (pb *PaperBroker) Name() string { return "paper" }

// SetNotifier replaces the event subscriber. The API server registers its
// stream hub here after both have been built.
func (pb *PaperBroker) SetNotifier(n Notifier) { pb.notify = n }

// ensureReady loads the ledger and rolls it over to today.
func (pb *PaperBroker) ensureReady() error {
	date := utils.TradingDate(pb.now())
	res, err := pb.store.ResetDailyPositions(date)
	if err != nil {
		return fmt.Errorf("rollover to %s: %w", date, err)
	}
	if res.Applied {
		pb.afterRollover(res)
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════
// Orders
// ════════════════════════════════════════════════════════════════════

// PlaceOrder validates and records a new order. MARKET orders fill at the
// last traded price straight away; IOC orders are evaluated once against the
// current bar and cancelled when they do not fill. Everything else stays
// PENDING until a refresh fills it.
//
// A request that fails validation is never persisted: the response carries
// REJECTED with the reasons and the error wraps ErrInvalidOrder. A MARKET
// order that cannot be priced is persisted as REJECTED and the error wraps
// ErrOrderRejected.
func (pb *PaperBroker) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResponse, error) {
	return pb.placeOrder(ctx, req, "")
}

// placeOrder places req. A non-empty exitOf names the position the order
// squares off; its size is then re-checked against that position inside the
// write transaction.
func (pb *PaperBroker) placeOrder(ctx context.Context, req models.OrderRequest, exitOf string) (*models.OrderResponse, error) {
	req = NormalizeRequest(req)
	if v := ValidateOrder(req); !v.IsValid() {
		msg := v.ErrorString()
		pb.metrics.ObserveOrder(req.Type, models.OrderRejected)
		pb.log.Warn("order failed validation", "symbol", req.Symbol, "error", msg)
		return &models.OrderResponse{Status: models.OrderRejected, Message: msg},
			fmt.Errorf("%w: %s", ErrInvalidOrder, msg)
	}
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}

	// Price outside the write lock so a slow provider never stalls the book.
	immediate := req.Type == models.Market || req.Validity == models.ValidityIOC
	var (
		q    models.Quote
		qerr error
	)
	if immediate {
		q, qerr = pb.quotes.Quote(ctx, req.Symbol)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var (
		order models.Order
		trade *models.Trade
	)
	err := pb.store.Update(func(tx *store.Tx) error {
		req := req
		if exitOf != "" {
			if err := sizeExit(tx.State, exitOf, &req); err != nil {
				return err
			}
		}
		o, err := models.NewOrder(tx.NextOrderID(), req, tx.Now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
		tx.State.Orders[o.ID] = o
		if immediate {
			if trade, err = fillNow(tx, o, q, qerr); err != nil {
				return err
			}
		}
		order = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	pb.afterOrder(ctx, &order, trade)
	pb.syncBook()

	resp := &models.OrderResponse{OrderID: order.ID, Status: order.Status, Message: order.Message}
	switch order.Status {
	case models.OrderRejected:
		pb.log.Warn("order rejected", "order_id", order.ID, "symbol", order.Symbol, "reason", order.Message)
		return resp, fmt.Errorf("%w: %s", ErrOrderRejected, order.Message)
	case models.OrderTraded:
		resp.Message = fmt.Sprintf("filled %d @ %s", order.FilledQty, utils.FormatINR(order.TradedPrice))
		pb.log.Info("order filled", "order_id", order.ID, "symbol", order.Symbol,
			"side", order.Side.String(), "qty", order.FilledQty, "price", order.TradedPrice)
	case models.OrderPending:
		resp.Message = "order placed"
		pb.log.Info("order placed", "order_id", order.ID, "symbol", order.Symbol,
			"type", order.Type, "side", order.Side.String(), "qty", order.Qty)
	}
	return resp, nil
}

// fillNow resolves an order that must not rest on the book.
func fillNow(tx *store.Tx, o *models.Order, q models.Quote, qerr error) (*models.Trade, error) {
	if o.Type == models.Market {
		if qerr != nil {
			return nil, finish(o, models.OrderRejected, "no quote: "+qerr.Error(), tx.Now())
		}
		return engine.ExecuteMarketOrder(tx.State, o, q.LastPrice, tx)
	}

	if qerr != nil {
		return nil, finish(o, models.OrderCancelled, "IOC cancelled, no quote", tx.Now())
	}
	t, err := engine.CheckLimitOrder(tx.State, o, q.Bar(), tx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, finish(o, models.OrderCancelled, "IOC cancelled, not marketable", tx.Now())
	}
	return t, nil
}

// finish moves an order to a terminal status without a fill. Only forward
// moves of the order state machine are allowed.
func finish(o *models.Order, status models.OrderStatus, msg string, now time.Time) error {
	if !o.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s is %s", ErrOrderCantModify, o.ID, o.Status)
	}
	o.Status = status
	o.Message = msg
	o.UpdatedAt = now
	return nil
}

// ModifyOrder changes quantity, type or prices of a PENDING order.
func (pb *PaperBroker) ModifyOrder(ctx context.Context, orderID string, req models.ModifyRequest) (*models.OrderResponse, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}

	var order models.Order
	err := pb.store.Update(func(tx *store.Tx) error {
		o, ok := tx.State.Orders[orderID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if err := ValidateModifyOrder(o, req); err != nil {
			return err
		}
		*o = applyModify(*o, req)
		o.Message = "modified"
		o.UpdatedAt = tx.Now()
		order = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	pb.afterOrder(ctx, &order, nil)
	pb.log.Info("order modified", "order_id", order.ID, "qty", order.Qty, "type", order.Type,
		"limit_price", order.LimitPrice, "stop_price", order.StopPrice)
	return &models.OrderResponse{OrderID: order.ID, Status: order.Status, Message: "order modified"}, nil
}

// CancelOrder cancels a PENDING order.
func (pb *PaperBroker) CancelOrder(ctx context.Context, orderID string) (*models.OrderResponse, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}

	var order models.Order
	err := pb.store.Update(func(tx *store.Tx) error {
		o, ok := tx.State.Orders[orderID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if err := finish(o, models.OrderCancelled, "cancelled by user", tx.Now()); err != nil {
			return err
		}
		order = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	pb.afterOrder(ctx, &order, nil)
	pb.syncBook()
	pb.log.Info("order cancelled", "order_id", order.ID)
	return &models.OrderResponse{OrderID: order.ID, Status: order.Status, Message: order.Message}, nil
}

// PlaceMultiOrder places every request and reports each outcome in request
// order. One failure does not stop the rest.
func (pb *PaperBroker) PlaceMultiOrder(ctx context.Context, reqs []models.OrderRequest) []MultiOrderResult {
	results := make([]MultiOrderResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(multiOrderLimit)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := pb.PlaceOrder(ctx, req)
			results[i] = multiResult(i, req.Symbol, resp, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CancelMultiOrder cancels every listed order and reports each outcome.
func (pb *PaperBroker) CancelMultiOrder(ctx context.Context, orderIDs []string) []MultiOrderResult {
	results := make([]MultiOrderResult, len(orderIDs))
	for i, id := range orderIDs {
		resp, err := pb.CancelOrder(ctx, id)
		results[i] = multiResult(i, id, resp, err)
	}
	return results
}

func multiResult(i int, ref string, resp *models.OrderResponse, err error) MultiOrderResult {
	r := MultiOrderResult{Index: i, Ref: ref, Response: resp}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// GetOrders returns every order in placement order.
func (pb *PaperBroker) GetOrders(_ context.Context) ([]models.Order, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	var out []models.Order
	err := pb.store.View(func(st *models.State) error {
		out = make([]models.Order, 0, len(st.Orders))
		for _, o := range sortedOrders(st, false) {
			out = append(out, *o)
		}
		return nil
	})
	return out, err
}

// GetOrderByID returns a specific order by its ID.
func (pb *PaperBroker) GetOrderByID(_ context.Context, orderID string) (*models.Order, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	var out *models.Order
	err := pb.store.View(func(st *models.State) error {
		o, ok := st.Orders[orderID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		cp := *o
		out = &cp
		return nil
	})
	return out, err
}

// sortedOrders returns orders by placement time, optionally only PENDING ones.
func sortedOrders(st *models.State, pendingOnly bool) []*models.Order {
	out := make([]*models.Order, 0, len(st.Orders))
	for _, o := range st.Orders {
		if pendingOnly && o.Status != models.OrderPending {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDateTime.Equal(out[j].OrderDateTime) {
			return out[i].OrderDateTime.Before(out[j].OrderDateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ════════════════════════════════════════════════════════════════════
// Positions, Holdings & Funds
// ════════════════════════════════════════════════════════════════════

// GetPositions marks open positions to market and returns the book with
// aggregates computed for this call.
func (pb *PaperBroker) GetPositions(ctx context.Context) (*models.PositionBook, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	if err := pb.refresh(ctx, refreshScope{positions: true}); err != nil {
		return nil, err
	}

	book := &models.PositionBook{}
	err := pb.store.View(func(st *models.State) error {
		var realized, unrealized decimal.Decimal
		book.Positions = make([]models.Position, 0, len(st.Positions))
		for _, p := range st.Positions {
			book.Positions = append(book.Positions, *p)
			if !p.IsFlat() {
				book.Overall.CountOpen++
			}
			realized = realized.Add(decimal.NewFromFloat(p.Realized))
			unrealized = unrealized.Add(decimal.NewFromFloat(p.Unrealized))
		}
		sort.Slice(book.Positions, func(i, j int) bool { return book.Positions[i].ID < book.Positions[j].ID })
		book.Overall.CountTotal = len(book.Positions)
		book.Overall.PLRealized = realized.InexactFloat64()
		book.Overall.PLUnrealized = unrealized.InexactFloat64()
		book.Overall.PLTotal = realized.Add(unrealized).InexactFloat64()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// GetHoldings marks delivery holdings to market and returns them with
// portfolio totals.
func (pb *PaperBroker) GetHoldings(ctx context.Context) (*models.HoldingBook, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	if err := pb.refresh(ctx, refreshScope{holdings: true}); err != nil {
		return nil, err
	}

	book := &models.HoldingBook{}
	err := pb.store.View(func(st *models.State) error {
		var invested, current, pl decimal.Decimal
		book.Holdings = make([]models.Holding, 0, len(st.Holdings))
		for _, h := range st.Holdings {
			book.Holdings = append(book.Holdings, *h)
			invested = invested.Add(decimal.NewFromFloat(h.CostPrice).Mul(decimal.NewFromInt(int64(h.RemainingQty))))
			current = current.Add(decimal.NewFromFloat(h.MarketVal))
			pl = pl.Add(decimal.NewFromFloat(h.PL))
		}
		sort.Slice(book.Holdings, func(i, j int) bool { return book.Holdings[i].ID < book.Holdings[j].ID })
		book.Overall.Count = len(book.Holdings)
		book.Overall.TotalInvestment = invested.InexactFloat64()
		book.Overall.TotalCurrentValue = current.InexactFloat64()
		book.Overall.TotalPL = pl.InexactFloat64()
		if invested.IsPositive() {
			book.Overall.PnLPct = pl.Div(invested).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// GetFunds returns the capital ledger.
func (pb *PaperBroker) GetFunds(_ context.Context) (*models.Funds, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	var funds models.Funds
	err := pb.store.View(func(st *models.State) error {
		funds = st.Funds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &funds, nil
}

// GetTradebook returns every fill in execution order.
func (pb *PaperBroker) GetTradebook(_ context.Context) ([]models.Trade, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	var out []models.Trade
	err := pb.store.View(func(st *models.State) error {
		out = make([]models.Trade, len(st.Trades))
		copy(out, st.Trades)
		return nil
	})
	return out, err
}

// ExitPosition squares off a position with an opposite-side MARKET order.
func (pb *PaperBroker) ExitPosition(ctx context.Context, positionID string) (*models.OrderResponse, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	var req models.OrderRequest
	err := pb.store.View(func(st *models.State) error {
		p, err := openPosition(st, positionID)
		if err != nil {
			return err
		}
		req = exitRequest(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pb.placeOrder(ctx, req, positionID)
}

// ExitPositions exits the listed positions, or every open position when
// none are listed. The returned error joins the individual failures.
func (pb *PaperBroker) ExitPositions(ctx context.Context, positionIDs []string) ([]MultiOrderResult, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	ids := positionIDs
	if len(ids) == 0 {
		err := pb.store.View(func(st *models.State) error {
			for id, p := range st.Positions {
				if !p.IsFlat() {
					ids = append(ids, id)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(ids)
	}

	results := make([]MultiOrderResult, len(ids))
	var errs []error
	for i, id := range ids {
		resp, err := pb.ExitPosition(ctx, id)
		results[i] = multiResult(i, id, resp, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("exit %s: %w", id, err))
		}
	}
	return results, errors.Join(errs...)
}

func openPosition(st *models.State, positionID string) (*models.Position, error) {
	p, ok := st.Positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, positionID)
	}
	if p.IsFlat() {
		return nil, fmt.Errorf("%w: %s is flat", ErrNoPosition, positionID)
	}
	return p, nil
}

// sizeExit caps an exit request at the position as it stands now, so exits
// that overlap never carry the position through flat.
func sizeExit(st *models.State, positionID string, req *models.OrderRequest) error {
	p, err := openPosition(st, positionID)
	if err != nil {
		return err
	}
	now := exitRequest(p)
	if now.Side != req.Side {
		return fmt.Errorf("%w: %s changed side", ErrNoPosition, positionID)
	}
	req.Qty = min(req.Qty, now.Qty)
	return nil
}

func exitRequest(p *models.Position) models.OrderRequest {
	side := models.Sell
	if p.NetQty < 0 {
		side = models.Buy
	}
	return models.OrderRequest{
		Symbol:      p.Symbol,
		Qty:         p.Qty,
		Side:        side,
		Type:        models.Market,
		ProductType: p.ProductType,
		Validity:    models.ValidityDay,
		OrderTag:    "exit",
	}
}

// ════════════════════════════════════════════════════════════════════
// Market Data Refresh
// ════════════════════════════════════════════════════════════════════

type refreshScope struct {
	positions bool
	holdings  bool
	pending   bool
}

// refresh fetches quotes for everything in scope, then in one transaction
// evaluates pending orders, marks positions and holdings to market and
// recomputes unrealized P&L.
func (pb *PaperBroker) refresh(ctx context.Context, scope refreshScope) error {
	var symbols []string
	err := pb.store.View(func(st *models.State) error {
		if scope.positions {
			for _, p := range st.Positions {
				if !p.IsFlat() {
					symbols = append(symbols, p.Symbol)
				}
			}
		}
		if scope.holdings {
			for _, h := range st.Holdings {
				symbols = append(symbols, h.Symbol)
			}
		}
		if scope.pending {
			for _, o := range st.Orders {
				if o.Status == models.OrderPending {
					symbols = append(symbols, o.Symbol)
				}
			}
		}
		return nil
	})
	if err != nil || len(symbols) == 0 {
		return err
	}

	quotes, err := pb.quotes.Fetch(ctx, symbols)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}
	if len(quotes) == 0 {
		pb.log.Debug("refresh found no quotes", "symbols", len(symbols))
		return nil
	}

	var (
		filled []models.Order
		trades []models.Trade
		funds  models.Funds
	)
	err = pb.store.Update(func(tx *store.Tx) error {
		st := tx.State
		// Reset captures in case a previous attempt was rolled back.
		filled, trades = nil, nil
		if scope.pending {
			for _, o := range sortedOrders(st, true) {
				q, ok := quotes[o.Symbol]
				if !ok {
					continue
				}
				t, err := engine.CheckLimitOrder(st, o, q.Bar(), tx)
				if err != nil {
					pb.log.Warn("pending order skipped", "order_id", o.ID, "error", err)
					continue
				}
				if t != nil {
					filled = append(filled, *o)
					trades = append(trades, *t)
				}
			}
		}
		if scope.positions {
			for _, p := range st.Positions {
				if q, ok := quotes[p.Symbol]; ok {
					engine.UpdatePositionLTP(p, q.LastPrice)
				}
			}
		}
		if scope.holdings {
			for _, h := range st.Holdings {
				if q, ok := quotes[h.Symbol]; ok {
					engine.UpdateHoldingLTP(h, q.LastPrice)
				}
			}
		}
		engine.RecomputeUnrealized(st)
		funds = st.Funds
		return nil
	})
	if err != nil {
		return err
	}

	for i := range filled {
		pb.log.Info("pending order filled", "order_id", filled[i].ID, "symbol", filled[i].Symbol,
			"type", filled[i].Type, "price", trades[i].TradedPrice)
		pb.afterOrder(ctx, &filled[i], &trades[i])
	}
	if scope.positions || scope.holdings {
		pb.publish(Event{Type: EventLTP, Funds: &funds})
	}
	pb.syncBook()
	return nil
}

// UpdatePositionsLtp runs a full refresh cycle: pending orders, positions
// and holdings.
func (pb *PaperBroker) UpdatePositionsLtp(ctx context.Context) error {
	if err := pb.ensureReady(); err != nil {
		return err
	}
	start := time.Now()
	err := pb.refresh(ctx, refreshScope{positions: true, holdings: true, pending: true})
	pb.metrics.ObserveRefresh(time.Since(start), err)
	return err
}

// CheckPendingOrders evaluates resting orders against current quotes
// without marking the rest of the book.
func (pb *PaperBroker) CheckPendingOrders(ctx context.Context) error {
	if err := pb.ensureReady(); err != nil {
		return err
	}
	return pb.refresh(ctx, refreshScope{pending: true})
}

// StartLtpUpdates runs UpdatePositionsLtp every interval until
// StopLtpUpdates is called.
func (pb *PaperBroker) StartLtpUpdates(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ltp interval must be positive, got %v", interval)
	}
	pb.loopMu.Lock()
	defer pb.loopMu.Unlock()
	if pb.stop != nil {
		return ErrLtpLoopRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	pb.stop, pb.done = cancel, done
	go pb.ltpLoop(ctx, interval, done)
	pb.log.Info("ltp updates started", "interval", interval)
	return nil
}

func (pb *PaperBroker) ltpLoop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tctx, cancel := context.WithTimeout(ctx, interval)
			err := pb.UpdatePositionsLtp(tctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				pb.log.Warn("ltp update failed", "error", err)
			}
		}
	}
}

// StopLtpUpdates stops the refresh loop and waits for an in-flight cycle to
// finish. It is a no-op when no loop is running.
func (pb *PaperBroker) StopLtpUpdates() {
	pb.loopMu.Lock()
	stop, done := pb.stop, pb.done
	pb.stop, pb.done = nil, nil
	pb.loopMu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
	pb.log.Info("ltp updates stopped")
}

// LtpUpdatesRunning reports whether the refresh loop is active.
func (pb *PaperBroker) LtpUpdatesRunning() bool {
	pb.loopMu.Lock()
	defer pb.loopMu.Unlock()
	return pb.stop != nil
}

// ════════════════════════════════════════════════════════════════════
// Maintenance
// ════════════════════════════════════════════════════════════════════

// Rollover applies the end-of-day rollover for date (YYYY-MM-DD, IST), or
// for today when date is empty. Dates before the last rollover or after
// today are refused.
func (pb *PaperBroker) Rollover(_ context.Context, date string) (*store.RolloverResult, error) {
	today := utils.TradingDate(pb.now())
	if date == "" {
		date = today
	}
	if _, err := utils.ParseTradingDate(date); err != nil {
		return nil, fmt.Errorf("invalid rollover date %q: %w", date, err)
	}
	if date > today {
		return nil, fmt.Errorf("rollover date %s is after today %s", date, today)
	}
	err := pb.store.View(func(st *models.State) error {
		if st.LastTradingDate != nil && date < *st.LastTradingDate {
			return fmt.Errorf("rollover date %s is before last trading date %s", date, *st.LastTradingDate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, err := pb.store.ResetDailyPositions(date)
	if err != nil {
		return nil, err
	}
	if res.Applied {
		pb.afterRollover(res)
	}
	return &res, nil
}

// ResetPaperTradeState wipes the ledger back to the initial balance.
func (pb *PaperBroker) ResetPaperTradeState(_ context.Context) error {
	if err := pb.store.ResetState(); err != nil {
		return err
	}
	funds, err := pb.GetFunds(context.Background())
	if err != nil {
		return err
	}
	pb.publish(Event{Type: EventReset, Funds: funds})
	pb.syncBook()
	return nil
}

// Summary returns counts and funds for status displays.
func (pb *PaperBroker) Summary(_ context.Context) (*Summary, error) {
	if err := pb.ensureReady(); err != nil {
		return nil, err
	}
	s := &Summary{LtpLoopRunning: pb.LtpUpdatesRunning()}
	err := pb.store.View(func(st *models.State) error {
		s.Funds = st.Funds
		s.Holdings = len(st.Holdings)
		s.Trades = len(st.Trades)
		s.UpdatedAt = st.UpdatedAt
		if st.LastTradingDate != nil {
			s.LastTradingDate = *st.LastTradingDate
		}
		for _, p := range st.Positions {
			if !p.IsFlat() {
				s.OpenPositions++
			}
		}
		for _, o := range st.Orders {
			if o.Status == models.OrderPending {
				s.PendingOrders++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ════════════════════════════════════════════════════════════════════
// Fan-out
// ════════════════════════════════════════════════════════════════════

// afterOrder reports a persisted order change and its fill, if any.
func (pb *PaperBroker) afterOrder(ctx context.Context, o *models.Order, t *models.Trade) {
	pb.metrics.ObserveOrder(o.Type, o.Status)
	pb.publish(Event{Type: EventOrder, Order: o})
	if t == nil {
		return
	}
	pb.metrics.ObserveTrade(*t)
	pb.publish(Event{Type: EventTrade, Trade: t})
	if pb.journal != nil {
		// The fill is already on disk; a cancelled caller must not drop it
		// from the journal.
		if err := pb.journal.Record(context.WithoutCancel(ctx), *t); err != nil {
			pb.log.Warn("journal write failed", "trade_id", t.ID, "error", err)
		}
	}
}

func (pb *PaperBroker) afterRollover(res store.RolloverResult) {
	pb.metrics.IncRollover()
	pb.publish(Event{Type: EventRollover, Rollover: &res})
	pb.syncBook()
}

func (pb *PaperBroker) publish(ev Event) {
	if pb.notify == nil {
		return
	}
	ev.At = pb.now()
	pb.notify.Publish(ev)
}

// syncBook pushes book gauges to metrics.
func (pb *PaperBroker) syncBook() {
	if pb.metrics == nil {
		return
	}
	if err := pb.store.View(func(st *models.State) error {
		pb.metrics.SetBook(st)
		return nil
	}); err != nil {
		pb.log.Debug("metrics sync skipped", "error", err)
	}
}
