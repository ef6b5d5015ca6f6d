// Package metrics exposes Prometheus collectors for the paper trading engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seenimoa/papertrade/pkg/models"
)

const namespace = "papertrade"

// Metrics holds all collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	OrdersTotal     *prometheus.CounterVec // labels: type, status
	TradesTotal     *prometheus.CounterVec // labels: product, side
	TradeValue      *prometheus.CounterVec // labels: side
	QuoteFetches    *prometheus.CounterVec // labels: provider, result
	QuoteLatency    *prometheus.HistogramVec
	RefreshDuration prometheus.Histogram
	RefreshFailures prometheus.Counter
	Rollovers       prometheus.Counter
	BreakerState    *prometheus.GaugeVec // 0=closed, 1=half-open, 2=open

	Funds         *prometheus.GaugeVec // labels: field
	OpenPositions prometheus.Gauge
	PendingOrders prometheus.Gauge
	Holdings      prometheus.Gauge
	StreamClients prometheus.Gauge
}

// New registers and returns all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders placed, by type and resulting status",
		}, []string{"type", "status"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Fills executed",
		}, []string{"product", "side"}),
		TradeValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_value_total",
			Help:      "Notional value of fills",
		}, []string{"side"}),
		QuoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_fetches_total",
			Help:      "Quote provider round trips",
		}, []string{"provider", "result"}),
		QuoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_fetch_duration_seconds",
			Help:      "Quote provider round trip latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ltp_refresh_duration_seconds",
			Help:      "Duration of a full price refresh cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ltp_refresh_failures_total",
			Help:      "Refresh cycles that ended in error",
		}),
		Rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollovers_total",
			Help:      "End-of-day rollovers applied",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quote_breaker_state",
			Help:      "Quote provider circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),
		Funds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funds",
			Help:      "Funds ledger values",
		}, []string{"field"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Positions with non-zero net quantity",
		}),
		PendingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_orders",
			Help:      "Orders waiting for a fill",
		}),
		Holdings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holdings",
			Help:      "Delivery holdings",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected websocket clients",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersTotal, m.TradesTotal, m.TradeValue,
		m.QuoteFetches, m.QuoteLatency,
		m.RefreshDuration, m.RefreshFailures, m.Rollovers, m.BreakerState,
		m.Funds, m.OpenPositions, m.PendingOrders, m.Holdings, m.StreamClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveOrder counts an order by type and the status it ended the call in.
func (m *Metrics) ObserveOrder(typ models.OrderType, status models.OrderStatus) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(string(typ), string(status)).Inc()
}

// ObserveTrade counts a fill.
func (m *Metrics) ObserveTrade(t models.Trade) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(string(t.ProductType), t.Side.String()).Inc()
	m.TradeValue.WithLabelValues(t.Side.String()).Add(t.TradeValue)
}

// ObserveQuoteFetch records one provider round trip.
func (m *Metrics) ObserveQuoteFetch(provider string, _ int, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.QuoteFetches.WithLabelValues(provider, result).Inc()
	m.QuoteLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveRefresh records a refresh cycle.
func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(d.Seconds())
	if err != nil {
		m.RefreshFailures.Inc()
	}
}

// IncRollover counts an applied rollover.
func (m *Metrics) IncRollover() {
	if m == nil {
		return
	}
	m.Rollovers.Inc()
}

// SetBreakerState records a breaker transition. state follows gobreaker's
// numbering: 0 closed, 1 half-open, 2 open.
func (m *Metrics) SetBreakerState(provider string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// SetStreamClients records the websocket client count.
func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.StreamClients.Set(float64(n))
}

// SetBook refreshes the ledger gauges from st.
func (m *Metrics) SetBook(st *models.State) {
	if m == nil || st == nil {
		return
	}
	m.Funds.WithLabelValues("total_balance").Set(st.Funds.TotalBalance)
	m.Funds.WithLabelValues("available_balance").Set(st.Funds.AvailableBalance)
	m.Funds.WithLabelValues("utilized_margin").Set(st.Funds.UtilizedMargin)
	m.Funds.WithLabelValues("realized_pnl").Set(st.Funds.RealizedPnL)
	m.Funds.WithLabelValues("unrealized_pnl").Set(st.Funds.UnrealizedPnL)

	open := 0
	for _, p := range st.Positions {
		if !p.IsFlat() {
			open++
		}
	}
	pending := 0
	for _, o := range st.Orders {
		if o.Status == models.OrderPending {
			pending++
		}
	}
	m.OpenPositions.Set(float64(open))
	m.PendingOrders.Set(float64(pending))
	m.Holdings.Set(float64(len(st.Holdings)))
}
