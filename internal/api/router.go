// Package api serves the cycle service over JSON HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mtf-tracker/internal/logger"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/orderbook"
	"mtf-tracker/internal/tracker"
)

const (
	defaultExitLimit = 50
	maxExitLimit     = 1000
)

// Cycler is the part of tracker.Service the API drives.
type Cycler interface {
	RunCycle(ctx context.Context) *tracker.CycleResult
	Last() (*tracker.CycleResult, bool)
	Orders(ctx context.Context) tracker.OrdersResult
}

// SessionControl logs the broker session in and out on request.
type SessionControl interface {
	Login(ctx context.Context) (*model.Session, error)
	Logout(ctx context.Context) error
}

// Server holds the handler dependencies. History and Sessions are optional.
type Server struct {
	Cycles   Cycler
	History  model.ExitHistory
	Sessions SessionControl
	Log      *zap.Logger
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(s *Server) *mux.Router {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	s.Log = s.Log.Named("api")

	r := mux.NewRouter()
	r.Use(s.traceMiddleware)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	// subrouters report a method mismatch only through their own handlers
	v1.NotFoundHandler = r.NotFoundHandler
	v1.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/cycle", s.handleCycle).Methods(http.MethodPost)
	v1.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	v1.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	v1.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	v1.HandleFunc("/exits", s.handleExits).Methods(http.MethodGet)
	v1.HandleFunc("/session", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/session", s.handleLogout).Methods(http.MethodDelete)
	return r
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Trace-ID")
		if id == "" {
			id = logger.GenerateTraceID("api", start)
		}
		w.Header().Set("X-Trace-ID", id)
		ctx := logger.WithTraceID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
		logger.From(ctx, s.Log).Debug("request",
			zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if last, ok := s.Cycles.Last(); ok {
		body["last_cycle_at"] = last.StartedAt
		body["last_cycle_id"] = last.CycleID
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	res := s.Cycles.RunCycle(r.Context())
	if !res.OK() {
		writeCycleError(w, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// latest returns the last successful cycle, running one when none exists.
func (s *Server) latest(ctx context.Context) *tracker.CycleResult {
	if res, ok := s.Cycles.Last(); ok {
		return res
	}
	return s.Cycles.RunCycle(ctx)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	res := s.latest(r.Context())
	if !res.OK() {
		writeCycleError(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_id":   res.CycleID,
		"updated_at": res.StartedAt,
		"positions":  res.Positions,
		"exits":      res.Exits,
		"reason":     res.Reason,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	res := s.latest(r.Context())
	if !res.OK() {
		writeCycleError(w, res)
		return
	}
	writeJSON(w, http.StatusOK, res.Summary)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	res := s.Cycles.Orders(r.Context())
	if res.Err != nil {
		writeError(w, statusFor(res.Err), res.Reason)
		return
	}
	res.Orders = orderbook.Filter(res.Orders, r.URL.Query().Get("product"))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExits(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		writeError(w, http.StatusNotImplemented, "Exit history not configured")
		return
	}
	limit := defaultExitLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExitLimit)
	}
	exits, err := s.History.List(r.Context(), limit)
	if err != nil {
		logger.From(r.Context(), s.Log).Error("list exits", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Could not read exit history")
		return
	}
	if exits == nil {
		exits = []model.ExitRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exits": exits})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeError(w, http.StatusNotImplemented, "Login not configured")
		return
	}
	sess, err := s.Sessions.Login(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "Login failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid_until": sess.ValidUntil})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeError(w, http.StatusNotImplemented, "Login not configured")
		return
	}
	if err := s.Sessions.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracker.ErrNoSession), errors.Is(err, tracker.ErrSessionExpired):
		return http.StatusServiceUnavailable
	case errors.Is(err, tracker.ErrFeed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, r.Method+" not allowed")
}

func writeCycleError(w http.ResponseWriter, res *tracker.CycleResult) {
	writeError(w, statusFor(res.Err), res.Reason)
}

func writeError(w http.ResponseWriter, code int, reason string) {
	writeJSON(w, code, map[string]string{"error": reason})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
