// Package broker is the paper-trading façade. It validates requests, keeps
// the ledger in the state store consistent under a single writer, fetches
// quotes from the configured provider and fans fills out to the trade
// journal, metrics and any live subscribers.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/seenimoa/papertrade/internal/store"
	"github.com/seenimoa/papertrade/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Broker Interface
// ════════════════════════════════════════════════════════════════════

// Broker is the surface the API server and the CLI drive. PaperBroker is
// the only implementation.
type Broker interface {
	// Name returns the broker provider name.
	Name() string

	// --- Orders ---

	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResponse, error)
	ModifyOrder(ctx context.Context, orderID string, req models.ModifyRequest) (*models.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string) (*models.OrderResponse, error)
	PlaceMultiOrder(ctx context.Context, reqs []models.OrderRequest) []MultiOrderResult
	CancelMultiOrder(ctx context.Context, orderIDs []string) []MultiOrderResult
	GetOrders(ctx context.Context) ([]models.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (*models.Order, error)

	// --- Positions, holdings & funds ---

	GetPositions(ctx context.Context) (*models.PositionBook, error)
	GetHoldings(ctx context.Context) (*models.HoldingBook, error)
	GetFunds(ctx context.Context) (*models.Funds, error)
	GetTradebook(ctx context.Context) ([]models.Trade, error)
	ExitPosition(ctx context.Context, positionID string) (*models.OrderResponse, error)
	ExitPositions(ctx context.Context, positionIDs []string) ([]MultiOrderResult, error)

	// --- Maintenance ---

	UpdatePositionsLtp(ctx context.Context) error
	Rollover(ctx context.Context, date string) (*store.RolloverResult, error)
	ResetPaperTradeState(ctx context.Context) error
	Summary(ctx context.Context) (*Summary, error)
}

// MultiOrderResult is one entry of a batch place/cancel/exit call. Index is
// the position of the request in the batch.
type MultiOrderResult struct {
	Index    int                   `json:"index"`
	Ref      string                `json:"ref,omitempty"`
	Response *models.OrderResponse `json:"response,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Summary is a compact view of the book.
type Summary struct {
	Funds           models.Funds `json:"funds"`
	OpenPositions   int          `json:"open_positions"`
	PendingOrders   int          `json:"pending_orders"`
	Holdings        int          `json:"holdings"`
	Trades          int          `json:"trades"`
	LastTradingDate string       `json:"last_trading_date,omitempty"`
	LtpLoopRunning  bool         `json:"ltp_loop_running"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// ════════════════════════════════════════════════════════════════════
// Events & Sinks
// ════════════════════════════════════════════════════════════════════

// EventType names what changed in the book.
type EventType string

const (
	EventOrder    EventType = "order"
	EventTrade    EventType = "trade"
	EventLTP      EventType = "ltp"
	EventRollover EventType = "rollover"
	EventReset    EventType = "reset"
)

// Event is published after a mutation has been persisted.
type Event struct {
	Type     EventType             `json:"type"`
	Order    *models.Order         `json:"order,omitempty"`
	Trade    *models.Trade         `json:"trade,omitempty"`
	Funds    *models.Funds         `json:"funds,omitempty"`
	Rollover *store.RolloverResult `json:"rollover,omitempty"`
	At       time.Time             `json:"at"`
}

// Notifier receives book events. Publish must not block.
type Notifier interface {
	Publish(Event)
}

// TradeSink durably records fills outside the state file.
type TradeSink interface {
	Record(ctx context.Context, trades ...models.Trade) error
}

// ════════════════════════════════════════════════════════════════════
// Common Errors
// ════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidOrder is returned when a request fails validation.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrOrderNotFound is returned when an order ID doesn't exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderCantModify is returned when an order can't be modified (already executed/cancelled).
	ErrOrderCantModify = errors.New("order cannot be modified")

	// ErrOrderRejected is returned when a placed order could not be filled
	// and was recorded as REJECTED.
	ErrOrderRejected = errors.New("order rejected")

	// ErrNoPosition is returned when exiting a missing or flat position.
	ErrNoPosition = errors.New("no open position")

	// ErrLtpLoopRunning is returned by StartLtpUpdates when a loop is already active.
	ErrLtpLoopRunning = errors.New("ltp updates already running")
)
