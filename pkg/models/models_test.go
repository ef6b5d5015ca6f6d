package models

import (
	"encoding/json"
	"testing"
	"time"
)

// ── Order Tests ──

func TestOrderSideJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderSide
		wantErr bool
	}{
		{`1`, Buy, false},
		{`-1`, Sell, false},
		{`"BUY"`, Buy, false},
		{`"sell"`, Sell, false},
		{`"s"`, Sell, false},
		{`"hold"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var got OrderSide
		err := json.Unmarshal([]byte(tt.in), &got)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// Sides always encode as the numeric code.
	data, err := json.Marshal(Sell)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "-1" {
		t.Errorf("Marshal(Sell) = %s, want -1", data)
	}
}

func TestOrderSideHelpers(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite should flip the side")
	}
	if Buy.String() != "BUY" || Sell.String() != "SELL" {
		t.Errorf("String: %s / %s", Buy, Sell)
	}
	if OrderSide(0).Valid() || !Buy.Valid() {
		t.Error("Valid misreports")
	}
}

func TestParseOrderType(t *testing.T) {
	tests := []struct {
		in   string
		want OrderType
	}{
		{"market", Market},
		{"2", Market},
		{" LMT ", Limit},
		{"stop", SLM},
		{"SL-M", SLM},
		{"stop-limit", SL},
		{"4", SL},
	}
	for _, tt := range tests {
		got, err := ParseOrderType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseOrderType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseOrderType("bracket"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseProductType(t *testing.T) {
	tests := []struct {
		in   string
		want ProductType
	}{
		{"mis", Intraday},
		{"INTRADAY", Intraday},
		{"delivery", CNC},
		{"NRML", Margin},
	}
	for _, tt := range tests {
		got, err := ParseProductType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseProductType(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseProductType("BO"); err == nil {
		t.Error("expected error for unknown product")
	}
	if !Intraday.IsIntraday() || CNC.IsIntraday() || !CNC.IsDelivery() {
		t.Error("product predicates misreport")
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderTransit, OrderPending, true},
		{OrderTransit, OrderRejected, true},
		{OrderTransit, OrderTraded, false},
		{OrderPending, OrderTraded, true},
		{OrderPending, OrderCancelled, true},
		{OrderPending, OrderExpired, true},
		{OrderPending, OrderTransit, false},
		{OrderTraded, OrderCancelled, false},
		{OrderCancelled, OrderPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	for _, s := range []OrderStatus{OrderTraded, OrderCancelled, OrderRejected, OrderExpired} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	req := OrderRequest{Symbol: "SBIN", Qty: 10, Side: Buy, Type: Limit, ProductType: CNC, LimitPrice: 790}

	o, err := NewOrder("26030200001", req, now)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if o.Status != OrderPending || o.RemainingQty != 10 || o.FilledQty != 0 {
		t.Errorf("order = %+v", o)
	}
	if o.Validity != ValidityDay {
		t.Errorf("Validity = %q, want DAY", o.Validity)
	}
	if !o.OrderDateTime.Equal(now) {
		t.Errorf("OrderDateTime = %v", o.OrderDateTime)
	}

	bad := []OrderRequest{
		{Qty: 1, Side: Buy},
		{Symbol: "SBIN", Qty: 0, Side: Buy},
		{Symbol: "SBIN", Qty: 1, Side: Buy, LimitPrice: -1},
	}
	for _, r := range bad {
		if _, err := NewOrder("x", r, now); err == nil {
			t.Errorf("NewOrder(%+v) should fail", r)
		}
	}
	if _, err := NewOrder("", req, now); err == nil {
		t.Error("NewOrder without id should fail")
	}
}

func TestPositionID(t *testing.T) {
	if got := PositionID("SBIN", Intraday); got != "SBIN-INTRADAY" {
		t.Errorf("PositionID = %q", got)
	}
	p := Position{NetQty: 0}
	if !p.IsFlat() {
		t.Error("zero net qty should be flat")
	}
}

// ── Quote Tests ──

func TestQuoteBar(t *testing.T) {
	tests := []struct {
		name string
		q    Quote
		want Bar
	}{
		{"full", Quote{LastPrice: 100, High: 105, Low: 98}, Bar{LTP: 100, High: 105, Low: 98}},
		{"no range", Quote{LastPrice: 100}, Bar{LTP: 100, High: 100, Low: 100}},
		{"no low", Quote{LastPrice: 100, High: 101}, Bar{LTP: 100, High: 101, Low: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Bar(); got != tt.want {
				t.Errorf("Bar() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ── State Tests ──

func TestNewState(t *testing.T) {
	now := time.Now()
	st := NewState(50000, now)
	if st.Version != SchemaVersion {
		t.Errorf("Version = %d", st.Version)
	}
	if st.Funds.TotalBalance != 50000 || st.Funds.AvailableBalance != 50000 {
		t.Errorf("Funds = %+v", st.Funds)
	}
	if st.Orders == nil || st.Positions == nil || st.Holdings == nil || st.Trades == nil {
		t.Error("containers should be initialised")
	}
	if st.LastTradingDate != nil {
		t.Error("fresh state has no trading date")
	}
}

func TestStateNormalize(t *testing.T) {
	var st State
	if err := json.Unmarshal([]byte(`{"funds":{"total_balance":10}}`), &st); err != nil {
		t.Fatal(err)
	}
	st.Normalize()
	if st.Version != SchemaVersion || st.Orders == nil || st.Trades == nil ||
		st.Positions == nil || st.Holdings == nil {
		t.Errorf("Normalize left gaps: %+v", st)
	}

	st.Orders["PT-1"] = nil
	st.Positions["X-CNC"] = nil
	st.Holdings["1"] = nil
	st.Normalize()
	if len(st.Orders)+len(st.Positions)+len(st.Holdings) != 0 {
		t.Errorf("null entries survived Normalize: %+v", st)
	}
	_ = st.Clone()
}

func TestStateClone(t *testing.T) {
	date := "2026-03-02"
	st := NewState(1000, time.Now())
	st.Orders["1"] = &Order{ID: "1", Qty: 5}
	st.Positions["SBIN-CNC"] = &Position{ID: "SBIN-CNC", NetQty: 5}
	st.Holdings["1"] = &Holding{ID: 1, Quantity: 5}
	st.Trades = append(st.Trades, Trade{ID: "T1"})
	st.LastTradingDate = &date

	cp := st.Clone()
	cp.Orders["1"].Qty = 99
	cp.Positions["SBIN-CNC"].NetQty = 99
	cp.Holdings["1"].Quantity = 99
	cp.Trades[0].ID = "T2"
	*cp.LastTradingDate = "2026-03-03"
	cp.Funds.TotalBalance = 0

	if st.Orders["1"].Qty != 5 || st.Positions["SBIN-CNC"].NetQty != 5 || st.Holdings["1"].Quantity != 5 {
		t.Error("clone shares book entries with the original")
	}
	if st.Trades[0].ID != "T1" || *st.LastTradingDate != "2026-03-02" || st.Funds.TotalBalance != 1000 {
		t.Error("clone shares scalar state with the original")
	}
}
