// Package server provides the HTTP API for accounts, ingestion jobs, purchase
// history, tracked items and settings.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/purchase-tracker/internal/config"
	"github.com/jonathan/purchase-tracker/internal/db"
	"github.com/jonathan/purchase-tracker/internal/jobs"
	"github.com/jonathan/purchase-tracker/internal/logging"
	"github.com/jonathan/purchase-tracker/internal/notify"
	"github.com/jonathan/purchase-tracker/internal/secrets"
	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/server/ratelimit"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// JobStarter starts ingestion jobs.
type JobStarter interface {
	Start(ctx context.Context, req jobs.StartRequest) (uuid.UUID, error)
}

// JobReader serves job snapshots.
type JobReader interface {
	Snapshot(ctx context.Context, id uuid.UUID, authorize jobs.Authorizer) (*jobs.Snapshot, error)
	Latest(ctx context.Context, kind types.JobKind, owner *uuid.UUID, authorize jobs.Authorizer) (*jobs.Snapshot, error)
	Acknowledge(ctx context.Context, id uuid.UUID, authorize jobs.Authorizer) (bool, error)
	Authorize(ctx context.Context, id uuid.UUID, authorize jobs.Authorizer) error
}

// JobStreamer relays a job's events to a push client.
type JobStreamer interface {
	Stream(ctx context.Context, w jobs.EventWriter, jobID uuid.UUID, startErr error) error
}

// TrackedItems manages a user's tracked products.
type TrackedItems interface {
	Track(ctx context.Context, owner uuid.UUID, req types.AddTrackedItemRequest) (*types.TrackedItem, error)
	List(ctx context.Context, owner uuid.UUID) ([]types.TrackedItem, error)
	Detail(ctx context.Context, owner, id uuid.UUID) (*types.TrackedItemDetail, error)
	Rename(ctx context.Context, owner, id uuid.UUID, name string) (*types.TrackedItem, error)
	UpdateThreshold(ctx context.Context, owner, id uuid.UUID, req types.ThresholdRequest) (*types.TrackedItem, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
}

// Purchases reads a user's stored order history.
type Purchases interface {
	SpendingSummary(ctx context.Context, owner uuid.UUID) (*types.SpendingSummary, error)
	ListPurchasedItems(ctx context.Context, owner uuid.UUID, q types.ItemQuery) (*types.ItemPage, error)
	RepeatItems(ctx context.Context, owner uuid.UUID, q types.RepeatItemQuery) ([]types.RepeatItem, error)
}

// SettingsStore persists per-user settings.
type SettingsStore interface {
	NotificationSettings(ctx context.Context, userID uuid.UUID) (*types.NotificationSettings, error)
	UpdateNotificationSettings(ctx context.Context, userID uuid.UUID, req *types.NotificationSettingsRequest) (*types.NotificationSettings, error)
	GetProviderSettings(ctx context.Context, userID uuid.UUID) (*db.ProviderSettings, error)
	UpdateProviderSettings(ctx context.Context, userID uuid.UUID, email string, passwordEncrypted, otpEncrypted *string, scheduled bool) error
}

// WebhookTester sends a synthetic webhook.
type WebhookTester interface {
	TestWebhook(ctx context.Context, url string) notify.DeliveryResult
}

// Deps are the components behind the routes.
type Deps struct {
	Users     UserStore
	Passwords *config.PasswordConfig
	JWT       *JWTService
	Settings  SettingsStore
	Box       *secrets.Box
	Starter   JobStarter
	Jobs      JobReader
	Streamer  JobStreamer
	Items     TrackedItems
	Purchases Purchases
	Webhooks  WebhookTester
	Limiter   *ratelimit.Limiter
	Health    func(ctx context.Context) error
	Log       *logging.Logger
}

// Server is the HTTP API.
type Server struct {
	httpServer  *http.Server
	deps        Deps
	userService *UserService
	log         *logging.Logger
}

// New creates a server listening on addr.
func New(addr string, deps Deps) *Server {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(&ratelimit.Config{Enabled: false})
	}
	s := &Server{
		deps:        deps,
		userService: NewUserService(deps.Users, deps.Passwords),
		log:         logging.OrNop(deps.Log).With("component", "http"),
	}

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: event streams stay open for the whole job.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	auth := middleware.AuthMiddleware(s.deps.JWT.AsTokenValidator())
	user := func(h http.HandlerFunc) http.Handler { return auth(h) }
	admin := func(h http.HandlerFunc) http.Handler { return auth(middleware.RequireAdmin(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Accounts
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/me", user(s.handleMe))
	mux.Handle("PUT /api/auth/password", user(s.handleUpdatePassword))
	mux.Handle("GET /api/users", admin(s.handleListUsers))
	mux.Handle("POST /api/users", admin(s.handleCreateUser))
	mux.Handle("POST /api/users/{id}/reset-password", admin(s.handleResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(s.handleDeleteUser))

	// Purchase history
	mux.Handle("GET /api/dashboard/summary", user(s.handleSpendingSummary))
	mux.Handle("GET /api/items", user(s.handleListItems))
	mux.Handle("GET /api/repeat-items", user(s.handleRepeatItems))

	// Ingestion jobs
	mux.Handle("POST /api/ingestion/run", user(s.handleStartIngestion))
	mux.Handle("GET /api/ingestion/manual/status", user(s.handleManualStatus))
	mux.Handle("POST /api/ingestion/jobs/seen", user(s.handleJobSeen))
	mux.Handle("GET /api/ingestion/jobs/latest", admin(s.handleLatestScheduled))
	mux.Handle("GET /api/ingestion/jobs/{id}/events", user(s.handleJobEvents))
	mux.Handle("GET /api/scheduler/run", admin(s.handleSchedulerRun))

	// Tracked items
	mux.Handle("POST /api/tracked-items", user(s.handleTrackItem))
	mux.Handle("GET /api/tracked-items", user(s.handleListTrackedItems))
	mux.Handle("GET /api/tracked-items/{id}", user(s.handleGetTrackedItem))
	mux.Handle("PUT /api/tracked-items/{id}", user(s.handleRenameTrackedItem))
	mux.Handle("DELETE /api/tracked-items/{id}", user(s.handleDeleteTrackedItem))
	mux.Handle("PUT /api/tracked-items/{id}/threshold", user(s.handleUpdateThreshold))

	// Settings
	mux.Handle("GET /api/settings", user(s.handleGetSettings))
	mux.Handle("PUT /api/settings/notifications", user(s.handleUpdateNotificationSettings))
	mux.Handle("PUT /api/settings/provider", user(s.handleUpdateProviderSettings))
	mux.Handle("POST /api/settings/webhook/test", user(s.handleTestWebhook))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer s.deps.Limiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the logging wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.deps.Limiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID is the remote IP. Forwarded headers are not trusted.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":    "Rate limit exceeded. Please try again later.",
		"limit":    info.Limit,
		"reset_at": info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	s.log.Warn("rate limit exceeded", "limit", info.Limit, "reset_at", info.ResetTime)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.log.Warn("health check failed", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status. Internal errors are logged and hidden.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.errorResponse(w, status, "Internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// validatable is implemented by the request types.
type validatable interface {
	Validate() error
}

// decodeRequest reads a JSON body into dst and validates it. An empty body
// is accepted when allowEmpty is set.
func (s *Server) decodeRequest(r *http.Request, dst validatable, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return &ErrValidation{Message: "invalid request body"}
		}
	}
	if err := dst.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError converts validator errors to the first failing field.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &ErrValidation{Field: ve[0].Field(), Message: ve[0].Tag()}
	}
	return &ErrValidation{Message: "invalid request"}
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}
