// Package api exposes the operational HTTP interface for the monitor.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"clearancewatch/internal/metrics"
	"clearancewatch/internal/monitor"
)

// Server wires read-only HTTP handlers to the store.
type Server struct {
	router chi.Router
	store  monitor.Store
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store monitor.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	s := &Server{
		store:  store,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/latest", s.listLatest)
		r.Get("/cycles/latest", s.lastCycle)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Ready once the store answers; an empty view is still ready.
	if _, _, err := s.store.LastCycle(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type latestItem struct {
	Retailer     string    `json:"retailer"`
	StoreID      string    `json:"store_id"`
	StoreName    string    `json:"store_name,omitempty"`
	Zip          string    `json:"zip,omitempty"`
	SKU          string    `json:"sku"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	Price        float64   `json:"price"`
	PriceWas     float64   `json:"price_was,omitempty"`
	PctOff       float64   `json:"pct_off,omitempty"`
	Availability string    `json:"availability,omitempty"`
	ProductURL   string    `json:"product_url"`
	Clearance    bool      `json:"clearance"`
	ObservedAt   time.Time `json:"observed_at"`
}

func (s *Server) listLatest(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.ListLatest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list latest state")
		return
	}

	storeID := r.URL.Query().Get("store_id")
	category := r.URL.Query().Get("category")
	clearanceOnly := r.URL.Query().Get("clearance") == "true"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	items := make([]latestItem, 0, len(states))
	for _, state := range states {
		if storeID != "" && state.StoreID != storeID {
			continue
		}
		if category != "" && !strings.EqualFold(state.Category, category) {
			continue
		}
		if clearanceOnly && !state.Clearance {
			continue
		}
		items = append(items, latestItem{
			Retailer:     state.Retailer,
			StoreID:      state.StoreID,
			StoreName:    state.StoreName,
			Zip:          state.Zip,
			SKU:          state.SKU,
			Title:        state.Title,
			Category:     state.Category,
			Price:        state.Price.Float64(),
			PriceWas:     state.PriceWas.Float64(),
			PctOff:       state.PctOff,
			Availability: state.Availability,
			ProductURL:   state.ProductURL,
			Clearance:    state.Clearance,
			ObservedAt:   state.ObservedAt,
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) lastCycle(w http.ResponseWriter, r *http.Request) {
	summary, ok, err := s.store.LastCycle(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load last cycle")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no cycles recorded yet")
		return
	}
	status := "fail"
	if summary.OK {
		status = "ok"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at":        summary.StartedAt,
		"retailer":          summary.Retailer,
		"status":            status,
		"zips":              summary.Zips,
		"zip_failures":      summary.ZipFailures,
		"items":             summary.Items,
		"quarantined":       summary.Quarantined,
		"alerts":            summary.Alerts,
		"category_failures": summary.CatFailures,
		"duration_seconds":  summary.Duration.Seconds(),
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
