/**
 * @description
 * Shared plumbing for the HTTP handlers: the handler struct, JSON response
 * helpers, the translation from service errors to HTTP statuses, and the
 * distributed rate limit applied to money-movement endpoints.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/billing, internal/store: For service logic and custom errors.
 * - pkg/stripeclient: For payment processor error mapping.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/app"
	"github.com/upkeephq/marketplace-service/internal/billing"
	"github.com/upkeephq/marketplace-service/internal/store"
	"github.com/upkeephq/marketplace-service/pkg/stripeclient"
)

// Handlers holds the application services that handlers will use.
type Handlers struct {
	maintenance *app.MaintenanceService
	payments    *app.PaymentService

	limiter             *app.RedisPaymentRateLimiter
	paymentRateLimitMin int
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(maintenance *app.MaintenanceService, payments *app.PaymentService, limiter *app.RedisPaymentRateLimiter, paymentRateLimitPerMinute int) *Handlers {
	return &Handlers{
		maintenance:         maintenance,
		payments:            payments,
		limiter:             limiter,
		paymentRateLimitMin: paymentRateLimitPerMinute,
	}
}

// resolveUser resolves the token subject into the internal user UUID, writing
// the error response itself on failure.
func (h *Handlers) resolveUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get subject from context")
		return uuid.Nil, false
	}

	userID, err := h.maintenance.ResolveUserID(r.Context(), subject)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_resolution_failed subject=%s err=%v", subject, err)
		h.writeError(w, http.StatusBadRequest, "User not found")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a UUID path parameter, writing the error response on failure.
func (h *Handlers) pathUUID(w http.ResponseWriter, raw, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s format", label))
		return uuid.Nil, false
	}
	return id, true
}

// enforcePaymentRateLimit applies the fixed-window limit to a money-movement
// endpoint. Limiter errors fail open; a Redis outage must not block payments.
func (h *Handlers) enforcePaymentRateLimit(w http.ResponseWriter, r *http.Request, scope string, subject uuid.UUID) bool {
	if h.limiter == nil || h.paymentRateLimitMin <= 0 {
		return true
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, subject.String(), h.paymentRateLimitMin, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
		return true
	}
	if count > h.paymentRateLimitMin {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests, slow down")
		return false
	}
	return true
}

// handleServiceError translates service and store errors into HTTP responses.
func (h *Handlers) handleServiceError(w http.ResponseWriter, err error) {
	var storeConflict *store.ConflictError
	var stateConflict *billing.StateConflictError
	var exceeded *billing.AuthorizationExceededError
	var belowThreshold *billing.BelowThresholdError
	var processorErr *stripeclient.APIError

	switch {
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrPropertyNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrTemplateNotFound),
		errors.Is(err, store.ErrServiceRequestNotFound),
		errors.Is(err, store.ErrProviderNotFound),
		errors.Is(err, store.ErrEstimateNotFound),
		errors.Is(err, store.ErrChangeOrderNotFound),
		errors.Is(err, store.ErrInvoiceNotFound),
		errors.Is(err, store.ErrDiagnosticFeeNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, app.ErrEmptyTitle),
		errors.Is(err, app.ErrEmptyReason):
		h.writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, app.ErrNotPropertyOwner):
		h.writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, billing.ErrDisputeWindowClosed):
		h.writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, app.ErrDiagnosticFeeAlreadyPaid),
		errors.Is(err, app.ErrChangeOrderExpired),
		errors.Is(err, app.ErrMissingCustomer),
		errors.Is(err, app.ErrProviderPayoutsDisabled),
		errors.Is(err, billing.ErrAuthorizationMissing):
		h.writeError(w, http.StatusConflict, err.Error())

	case errors.As(err, &storeConflict), errors.As(err, &stateConflict):
		h.writeError(w, http.StatusConflict, err.Error())

	case errors.As(err, &exceeded), errors.As(err, &belowThreshold):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.As(err, &processorErr):
		log.Printf("level=error component=api msg=\"payment processor error\" status=%d code=%s err=%v", processorErr.StatusCode, processorErr.Payload.Code, err)
		h.writeError(w, http.StatusBadGateway, "Payment processor error")

	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
