package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OrderSide represents buy (+1) or sell (-1).
type OrderSide int

const (
	Buy  OrderSide = 1
	Sell OrderSide = -1
)

// String returns "BUY" or "SELL".
func (s OrderSide) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("SIDE(%d)", int(s))
	}
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	return -s
}

// Valid reports whether s is Buy or Sell.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// UnmarshalJSON accepts 1 / -1 as well as "BUY" / "SELL".
func (s *OrderSide) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*s = OrderSide(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("invalid order side %s", string(b))
	}
	side, err := ParseSide(str)
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// ParseSide parses "BUY", "SELL", "1", "-1", "B" or "S".
func ParseSide(s string) (OrderSide, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B", "1", "+1":
		return Buy, nil
	case "SELL", "S", "-1":
		return Sell, nil
	}
	return 0, fmt.Errorf("invalid order side %q", s)
}

// OrderType represents the type of order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
	SLM    OrderType = "SL-M" // stop (market)
	SL     OrderType = "SL"   // stop-limit
)

// ParseOrderType accepts the canonical names plus common aliases
// ("stop", "stop-limit", and the numeric codes 1=limit 2=market 3=stop 4=stop-limit).
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET", "MKT", "2":
		return Market, nil
	case "LIMIT", "LMT", "1":
		return Limit, nil
	case "SL-M", "SLM", "STOP", "STOP-MARKET", "STOP_MARKET", "3":
		return SLM, nil
	case "SL", "STOP-LIMIT", "STOP_LIMIT", "STOPLIMIT", "4":
		return SL, nil
	}
	return "", fmt.Errorf("invalid order type %q", s)
}

// ProductType represents the product an order is placed under.
type ProductType string

const (
	Intraday ProductType = "INTRADAY" // squared off at rollover
	CNC      ProductType = "CNC"      // delivery, feeds holdings
	Margin   ProductType = "MARGIN"   // carry-forward
)

// ParseProductType accepts the canonical names plus MIS, DELIVERY and NRML.
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INTRADAY", "MIS":
		return Intraday, nil
	case "CNC", "DELIVERY":
		return CNC, nil
	case "MARGIN", "NRML":
		return Margin, nil
	}
	return "", fmt.Errorf("invalid product type %q", s)
}

// IsIntraday reports whether positions of this product are closed out at rollover.
func (p ProductType) IsIntraday() bool { return p == Intraday }

// IsDelivery reports whether fills of this product update holdings.
func (p ProductType) IsDelivery() bool { return p == CNC }

// Validity is the lifetime of a pending order.
type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
)

// OrderStatus represents the current state of an order.
type OrderStatus string

const (
	OrderTransit   OrderStatus = "TRANSIT"
	OrderPending   OrderStatus = "PENDING"
	OrderTraded    OrderStatus = "TRADED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderExpired   OrderStatus = "EXPIRED"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderTraded, OrderCancelled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a forward move in the
// order state machine.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderTransit:
		return next == OrderPending || next == OrderRejected
	case OrderPending:
		return next.IsTerminal()
	}
	return false
}

// OrderRequest represents a request to place a new order.
type OrderRequest struct {
	Symbol      string      `json:"symbol"       validate:"required"`
	Qty         int         `json:"qty"          validate:"gt=0"`
	Side        OrderSide   `json:"side"         validate:"oneof=1 -1"`
	Type        OrderType   `json:"type"         validate:"required"`
	ProductType ProductType `json:"product_type" validate:"required"`
	LimitPrice  float64     `json:"limit_price,omitempty" validate:"gte=0"`
	StopPrice   float64     `json:"stop_price,omitempty"  validate:"gte=0"`
	Validity    Validity    `json:"validity,omitempty"`
	OrderTag    string      `json:"order_tag,omitempty"`
}

// ModifyRequest carries the fields a pending order may change. Zero values
// leave the field untouched.
type ModifyRequest struct {
	Qty        int       `json:"qty,omitempty"`
	Type       OrderType `json:"type,omitempty"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	StopPrice  float64   `json:"stop_price,omitempty"`
}

// OrderResponse represents the broker's response to an order operation.
type OrderResponse struct {
	OrderID string      `json:"order_id,omitempty"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Order represents a placed/historical order.
type Order struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Qty           int         `json:"qty"`
	RemainingQty  int         `json:"remaining_quantity"`
	FilledQty     int         `json:"filled_qty"`
	Type          OrderType   `json:"type"`
	LimitPrice    float64     `json:"limit_price"`
	StopPrice     float64     `json:"stop_price"`
	ProductType   ProductType `json:"product_type"`
	Validity      Validity    `json:"validity"`
	Status        OrderStatus `json:"status"`
	TradedPrice   float64     `json:"traded_price"`
	OrderTag      string      `json:"order_tag,omitempty"`
	Message       string      `json:"message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	OrderDateTime time.Time   `json:"order_date_time"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewOrder builds a PENDING order from a request. Only shape is checked here;
// business validation lives with the broker.
func NewOrder(id string, req OrderRequest, now time.Time) (*Order, error) {
	if id == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("qty must be positive")
	}
	if req.LimitPrice < 0 || req.StopPrice < 0 {
		return nil, fmt.Errorf("prices cannot be negative")
	}
	validity := req.Validity
	if validity == "" {
		validity = ValidityDay
	}
	return &Order{
		ID:            id,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		RemainingQty:  req.Qty,
		Type:          req.Type,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		ProductType:   req.ProductType,
		Validity:      validity,
		Status:        OrderPending,
		OrderTag:      req.OrderTag,
		CreatedAt:     now,
		OrderDateTime: now,
		UpdatedAt:     now,
	}, nil
}

// Trade is an immutable fill record.
type Trade struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	TradedPrice float64     `json:"traded_price"`
	TradedQty   int         `json:"traded_qty"`
	TradeValue  float64     `json:"trade_value"`
	Side        OrderSide   `json:"side"`
	ProductType ProductType `json:"product_type"`
	OrderTag    string      `json:"order_tag,omitempty"`
	TradedAt    time.Time   `json:"traded_at"`
}

// Position is the netted exposure for one (symbol, product type) pair.
type Position struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	ProductType ProductType `json:"product_type"`
	Side        int         `json:"side"` // sign of NetQty
	BuyQty      int         `json:"buy_qty"`
	BuyAvg      float64     `json:"buy_avg"`
	BuyVal      float64     `json:"buy_val"`
	SellQty     int         `json:"sell_qty"`
	SellAvg     float64     `json:"sell_avg"`
	SellVal     float64     `json:"sell_val"`
	NetQty      int         `json:"net_qty"`
	Qty         int         `json:"qty"` // |NetQty|
	NetAvg      float64     `json:"net_avg"`
	Realized    float64     `json:"realized_profit"`
	Unrealized  float64     `json:"unrealized_profit"`
	PL          float64     `json:"pl"`
	LTP         float64     `json:"ltp"`
	DayBuyQty   int         `json:"day_buy_qty"`
	DaySellQty  int         `json:"day_sell_qty"`
	CfBuyQty    int         `json:"cf_buy_qty"`
	CfSellQty   int         `json:"cf_sell_qty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PositionID returns the key positions are stored under.
func PositionID(symbol string, product ProductType) string {
	return symbol + "-" + string(product)
}

// IsFlat reports whether the position carries no net exposure.
func (p *Position) IsFlat() bool { return p.NetQty == 0 }

// Holding is long-term delivery inventory for one symbol.
type Holding struct {
	ID           int       `json:"id"`
	Symbol       string    `json:"symbol"`
	HoldingType  string    `json:"holding_type"`
	Quantity     int       `json:"quantity"`
	RemainingQty int       `json:"remaining_quantity"`
	CostPrice    float64   `json:"cost_price"`
	LTP          float64   `json:"ltp"`
	MarketVal    float64   `json:"market_val"`
	PL           float64   `json:"pl"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Funds is the capital ledger.
type Funds struct {
	TotalBalance     float64 `json:"total_balance"`
	AvailableBalance float64 `json:"available_balance"`
	UtilizedMargin   float64 `json:"utilized_margin"`
	RealizedPnL      float64 `json:"realized_pnl"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
}

// PositionBook is the GetPositions payload with aggregates computed per call.
type PositionBook struct {
	Positions []Position       `json:"net_positions"`
	Overall   PositionsOverall `json:"overall"`
}

// PositionsOverall summarises a PositionBook.
type PositionsOverall struct {
	CountTotal   int     `json:"count_total"`
	CountOpen    int     `json:"count_open"`
	PLTotal      float64 `json:"pl_total"`
	PLRealized   float64 `json:"pl_realized"`
	PLUnrealized float64 `json:"pl_unrealized"`
}

// HoldingBook is the GetHoldings payload with aggregates computed per call.
type HoldingBook struct {
	Holdings []Holding      `json:"holdings"`
	Overall  HoldingOverall `json:"overall"`
}

// HoldingOverall summarises a HoldingBook.
type HoldingOverall struct {
	Count             int     `json:"count_total"`
	TotalInvestment   float64 `json:"total_investment"`
	TotalCurrentValue float64 `json:"total_current_value"`
	TotalPL           float64 `json:"total_pl"`
	PnLPct            float64 `json:"pnl_perc"`
}
