package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"hotelledger/internal/config"
	"hotelledger/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the ledger as JSON over HTTP.
type HTTPServer struct {
	cfg    *config.APIConfig
	svc    *Services
	db     Pinger
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc *Services, db Pinger, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, db: db, auth: NewHTTPAuth(cfg)}
	if logger != nil {
		srv.logger = logger.With().Str("component", "http").Logger()
	} else {
		srv.logger = zerolog.Nop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	mux.HandleFunc("GET /api/v1/availability", srv.handleAvailability)

	mux.HandleFunc("POST /api/v1/rooms", srv.handleRegisterRoom)
	mux.HandleFunc("POST /api/v1/rooms/{id}/maintenance", srv.handleMaintenance)
	mux.HandleFunc("GET /api/v1/rooms/{id}/status", srv.handleRoomStatus)
	mux.HandleFunc("GET /api/v1/hotels/{id}/rooms", srv.handleListRooms)

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings", srv.handleListBookings)
	mux.HandleFunc("GET /api/v1/bookings/{id}", srv.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", srv.handleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/checkout", srv.handleCheckout)
	mux.HandleFunc("POST /api/v1/bookings/{id}/extras", srv.handleAddExtra)
	mux.HandleFunc("GET /api/v1/bookings/{id}/bill", srv.handleBill)
	mux.HandleFunc("GET /api/v1/hotels/{id}/guests", srv.handleCurrentGuests)

	mux.HandleFunc("POST /api/v1/inventory/items", srv.handleAddItem)
	mux.HandleFunc("DELETE /api/v1/inventory/items/{id}", srv.handleDeleteItem)
	mux.HandleFunc("POST /api/v1/inventory/items/{id}/orders", srv.handlePlaceOrder)
	mux.HandleFunc("POST /api/v1/inventory/orders/{id}/receive", srv.handleReceiveOrder)
	mux.HandleFunc("GET /api/v1/hotels/{id}/inventory", srv.handleListItems)
	mux.HandleFunc("GET /api/v1/hotels/{id}/transactions", srv.handleListTransactions)

	mux.HandleFunc("GET /api/v1/export.xlsx", srv.handleExport)
	mux.HandleFunc("GET /api/v1/mirror/failed", srv.handleFailedMirrorTasks)

	handler := srv.loggingMiddleware(corsMiddleware(srv.auth, srv.auth.Wrap(mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     *config.APIConfig
	keys    *clientKeys
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, keys: newClientKeys(cfg.Auth), limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	client, reason := a.keys.authenticate(
		strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())),
		strings.TrimSpace(r.Header.Get(a.keys.extraHeader())),
	)
	if client == nil {
		return errors.New(reason)
	}
	if !permitted(client, requiredPermissionHTTP(r)) {
		return errPermissionDenied
	}
	return nil
}

func requiredPermissionHTTP(r *http.Request) string {
	if r.Method == http.MethodGet {
		return PermReadLedger
	}
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/v1/bookings"):
		return PermWriteBookings
	case strings.HasPrefix(r.URL.Path, "/api/v1/inventory"):
		return PermWriteInventory
	case strings.HasPrefix(r.URL.Path, "/api/v1/rooms"):
		return PermWriteRooms
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// corsMiddleware lets browser front-ends call the API.
func corsMiddleware(auth *HTTPAuth, next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", auth.keys.apiKeyHeader(), auth.keys.extraHeader(), requestIDKey}, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get(requestIDKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDKey, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		ev := s.logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeLedgerError renders a ledger error with its status and kind. Internal
// errors are logged and not echoed to the client.
func (s *HTTPServer) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": message, "kind": errorKind(err)})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
