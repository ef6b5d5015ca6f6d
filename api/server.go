// Package api provides the HTTP REST API server for the paper-trading
// engine.
//
// It exposes order entry, the order/trade/position/holding books, funds,
// maintenance actions (refresh, rollover, reset), the trade journal,
// Prometheus metrics and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/papertrade/internal/broker"
	"github.com/seenimoa/papertrade/internal/config"
	"github.com/seenimoa/papertrade/internal/journal"
	"github.com/seenimoa/papertrade/internal/metrics"
	"github.com/seenimoa/papertrade/pkg/models"
	"github.com/seenimoa/papertrade/pkg/utils"
)

const (
	// requestTimeout bounds a single broker call, quote fetches included.
	requestTimeout = 15 * time.Second

	// maxMultiOrders caps the size of a batch place or cancel.
	maxMultiOrders = 10

	maxBodyBytes = 1 << 20
)

// JournalReader is the read side of the trade journal.
type JournalReader interface {
	Trades(ctx context.Context, f journal.Filter) ([]models.Trade, error)
	Summary(ctx context.Context) ([]journal.SymbolSummary, error)
}

// QuoteSource prices a single symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
}

// Options wires a Server. Broker is required; the rest are optional.
type Options struct {
	Config  *config.Config
	Broker  broker.Broker
	Journal JournalReader
	Quotes  QuoteSource
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Version string
}

// Server is the HTTP API server.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	broker  broker.Broker
	journal JournalReader
	quotes  QuoteSource
	metrics *metrics.Metrics
	wsHub   *WSHub
	log     *slog.Logger
	version string
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		cfg:     cfg,
		broker:  opts.Broker,
		journal: opts.Journal,
		quotes:  opts.Quotes,
		metrics: opts.Metrics,
		log:     log.With("component", "api"),
		version: version,
	}
	s.wsHub = NewWSHub(log, opts.Metrics.SetStreamClients)
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the event hub. Register it as the broker's notifier.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	s.log.Info("api listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket; kept outside the timeout group
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(2 * requestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/config", s.handleGetConfig)
			r.Get("/summary", s.handleSummary)

			// Orders
			r.Get("/orders", s.handleGetOrders)
			r.Post("/orders", s.handlePlaceOrder)
			r.Post("/orders/multi", s.handlePlaceMultiOrder)
			r.Post("/orders/cancel", s.handleCancelMultiOrder)
			r.Get("/orders/{id}", s.handleGetOrderByID)
			r.Put("/orders/{id}", s.handleModifyOrder)
			r.Delete("/orders/{id}", s.handleCancelOrder)

			// Positions, holdings & funds
			r.Get("/positions", s.handleGetPositions)
			r.Post("/positions/exit", s.handleExitPositions)
			r.Post("/positions/{id}/exit", s.handleExitPosition)
			r.Get("/holdings", s.handleGetHoldings)
			r.Get("/funds", s.handleGetFunds)
			r.Get("/tradebook", s.handleGetTradebook)

			// Maintenance
			r.Post("/refresh", s.handleRefresh)
			r.Post("/rollover", s.handleRollover)
			r.Post("/reset", s.handleReset)

			// Market data & journal
			r.Get("/quote/{symbol}", s.handleQuote)
			r.Get("/journal", s.handleJournal)
			r.Get("/journal/summary", s.handleJournalSummary)
		})
	})

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MultiOrderRequest is the body for POST /api/v1/orders/multi.
type MultiOrderRequest struct {
	Orders []models.OrderRequest `json:"orders"`
}

// IDsRequest is the body for batch cancel and exit.
type IDsRequest struct {
	IDs []string `json:"ids"`
}

// RolloverRequest is the body for POST /api/v1/rollover.
type RolloverRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, default today (IST)
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := utils.NowIST()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":         "ok",
			"version":        s.version,
			"broker":         s.broker.Name(),
			"market_status":  utils.SessionStatus(now),
			"time_ist":       now.Format("2006-01-02 15:04:05"),
			"stream_clients": s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sum, err := s.broker.Summary(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sum})
}

// ============================================================
// Order handlers
// ============================================================

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	orders, err := s.broker.GetOrders(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if string(o.Status) == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    orders,
	})
}

func (s *Server) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := s.broker.GetOrderByID(ctx, orderID)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    order,
	})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.broker.PlaceOrder(ctx, req)
	if err != nil {
		s.writeBrokerError(w, err, orNil(resp))
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    resp,
	})
}

func (s *Server) handlePlaceMultiOrder(w http.ResponseWriter, r *http.Request) {
	var req MultiOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Orders) == 0 || len(req.Orders) > maxMultiOrders {
		writeError(w, http.StatusBadRequest, "orders must hold between 1 and "+strconv.Itoa(maxMultiOrders)+" entries")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.broker.PlaceMultiOrder(ctx, req.Orders),
	})
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req models.ModifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.broker.ModifyOrder(ctx, orderID, req)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    resp,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.broker.CancelOrder(ctx, orderID)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    resp,
	})
}

func (s *Server) handleCancelMultiOrder(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > maxMultiOrders {
		writeError(w, http.StatusBadRequest, "ids must hold between 1 and "+strconv.Itoa(maxMultiOrders)+" entries")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.broker.CancelMultiOrder(ctx, req.IDs),
	})
}

// ============================================================
// Position, holding & funds handlers
// ============================================================

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	positions, err := s.broker.GetPositions(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    positions,
	})
}

func (s *Server) handleExitPosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := s.broker.ExitPosition(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeBrokerError(w, err, orNil(resp))
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: resp})
}

// handleExitPositions exits the listed positions, or all open ones when the
// body is empty.
func (s *Server) handleExitPositions(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := s.broker.ExitPositions(ctx, req.IDs)
	if err != nil && results == nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	resp := APIResponse{Success: err == nil, Data: results}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	holdings, err := s.broker.GetHoldings(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: holdings})
}

func (s *Server) handleGetFunds(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	funds, err := s.broker.GetFunds(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    funds,
	})
}

func (s *Server) handleGetTradebook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trades, err := s.broker.GetTradebook(ctx)
	if err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: trades})
}

// ============================================================
// Maintenance handlers
// ============================================================

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.broker.UpdatePositionsLtp(ctx); err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	s.handleSummary(w, r)
}

func (s *Server) handleRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.broker.Rollover(r.Context(), req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.broker.ResetPaperTradeState(r.Context()); err != nil {
		s.writeBrokerError(w, err, nil)
		return
	}
	s.log.Warn("paper trading state reset via api", "request_id", middleware.GetReqID(r.Context()))
	s.handleSummary(w, r)
}

// ============================================================
// Market data & journal handlers
// ============================================================

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "quotes not configured")
		return
	}
	symbol := chi.URLParam(r, "symbol")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: q})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal disabled")
		return
	}

	q := r.URL.Query()
	f := journal.Filter{Symbol: q.Get("symbol")}
	if since := q.Get("since"); since != "" {
		t, err := utils.ParseTradingDate(since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		f.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	trades, err := s.journal.Trades(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: trades})
}

func (s *Server) handleJournalSummary(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal disabled")
		return
	}
	sum, err := s.journal.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: sum})
}

// ============================================================
// Helpers
// ============================================================

// statusFor maps broker errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, broker.ErrInvalidOrder), errors.Is(err, broker.ErrOrderCantModify):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrOrderNotFound), errors.Is(err, broker.ErrNoPosition):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeBrokerError(w http.ResponseWriter, err error, data any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("broker call failed", "error", err)
	}
	writeJSON(w, status, APIResponse{Success: false, Data: data, Error: err.Error()})
}

// orNil keeps a nil response from encoding as "data": null.
func orNil(resp *models.OrderResponse) any {
	if resp == nil {
		return nil
	}
	return resp
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
