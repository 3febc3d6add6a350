package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/user"
	"shipease/internal/general/jwt"
	"shipease/internal/general/logger"
	"shipease/internal/matching"
	"shipease/internal/ports"

	"github.com/jackc/pgx/v5/pgconn"
)

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc     ports.DispatchService
	logger  *logger.Logger
	auth    *jwt.Manager
	drivers http.HandlerFunc
	riders  http.HandlerFunc
	checks  map[string]HealthCheck
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
// drivers and riders serve the websocket upgrades and may be nil.
func NewDispatchHTTPHandler(
	svc ports.DispatchService,
	logger *logger.Logger,
	auth *jwt.Manager,
	drivers, riders http.HandlerFunc,
) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{
		svc:     svc,
		logger:  logger,
		auth:    auth,
		drivers: drivers,
		riders:  riders,
		checks:  map[string]HealthCheck{},
	}
}

// AddHealthCheck registers a probe reported by GET /health.
func (handler *DispatchHTTPHandler) AddHealthCheck(name string, check HealthCheck) {
	handler.checks[name] = check
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /bookings/{booking_id}/match",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleAdmin)(handler.handleStartMatching),
	)
	mux.HandleFunc("POST /bookings/{booking_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleAdmin)(handler.handleCancelMatching),
	)
	mux.HandleFunc("GET /bookings/{booking_id}/match",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleAdmin)(handler.handleMatchStatus),
	)
	mux.HandleFunc("GET /bookings/{booking_id}/events",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleAdmin)(handler.handleMatchEvents),
	)
	mux.HandleFunc("GET /riders/{rider_id}/bookings",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleAdmin)(handler.handleRiderBookings),
	)
	mux.HandleFunc("GET /admin/overview",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)(handler.handleOverview),
	)

	// websockets authenticate with their first frame
	if handler.drivers != nil {
		mux.HandleFunc("GET /ws/drivers/{driver_id}", handler.drivers)
	}
	if handler.riders != nil {
		mux.HandleFunc("GET /ws/riders/{rider_id}", handler.riders)
	}

	mux.HandleFunc("GET /health", handler.handleHealth)
	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

// handleCreateToken mints a token for local testing.
func (handler *DispatchHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	defer r.Body.Close()

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	role, err := user.ParseRole(string(req.Role))
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "role must be one of: RIDER, DRIVER, ADMIN", err)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(strings.TrimSpace(req.UserID), role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": claims.Subject, "role": role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    claims.Subject,
		Role:      role,
	})
}

// callerRiderID returns the rider the request acts for. Admins act for
// nobody, which disables the ownership check.
func callerRiderID(r *http.Request) (string, error) {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		return "", errors.New("no claims")
	}
	if claims.Role.IsAdmin() {
		return "", nil
	}
	return strings.TrimSpace(claims.Subject), nil
}

// bookingIDFrom fetches and checks the booking id path value.
func (handler *DispatchHTTPHandler) bookingIDFrom(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "booking_id is required", errors.New("missing booking_id"))
		return "", false
	}
	return bookingID, true
}

// serviceError maps a service error to an HTTP status.
func (handler *DispatchHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	case errors.Is(err, booking.ErrNotOwner):
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, matching.ErrAttemptNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, booking.ErrInvalidStatusMove),
		errors.Is(err, matching.ErrAttemptExists),
		errors.Is(err, matching.ErrAttemptFinished):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, booking.ErrBookingIDRequired),
		errors.Is(err, booking.ErrRiderIDRequired),
		errors.Is(err, matching.ErrInvalidRequest),
		errors.Is(err, matching.ErrInvalidResponse):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	switch {
	case status >= 500:
		action = "http_internal_error"
	case status == http.StatusBadRequest:
		action = "validation_failed"
	case status == http.StatusUnsupportedMediaType:
		action = "unsupported_media_type"
	case status == http.StatusConflict:
		action = "state_conflict"
	}
	handler.logger.Error(ctx, action, msg, err, map[string]any{"status": status})

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
