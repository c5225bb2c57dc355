/**
 * @description
 * HTTP handlers for the payment lifecycle endpoints: diagnostic fee, estimate
 * send/view/approve/reject, change orders, invoices with capture, and
 * disputes. Money-movement endpoints sit behind the distributed rate limit.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upkeephq/marketplace-service/internal/domain"
)

// ChargeDiagnosticFeeHandler charges the upfront diagnostic fee for a service
// request. Exactly one charge per request; retries conflict.
func (h *Handlers) ChargeDiagnosticFeeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	requestID, ok := h.pathUUID(w, chi.URLParam(r, "request_id"), "service request ID")
	if !ok {
		return
	}
	if !h.enforcePaymentRateLimit(w, r, "diagnostic_fee", userID) {
		return
	}

	payment, err := h.payments.ChargeDiagnosticFee(r.Context(), requestID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=diagnostic_fee outcome=failed request_id=%s err=%v", requestID, err)
		h.handleServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=diagnostic_fee outcome=charged request_id=%s fee=%d", requestID, payment.FeeCents)
	h.writeJSON(w, http.StatusCreated, payment)
}

// SendEstimateHandler creates an estimate and marks it sent.
func (h *Handlers) SendEstimateHandler(w http.ResponseWriter, r *http.Request) {
	providerID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}

	var payload domain.CreateEstimatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	estimate, err := h.payments.SendEstimate(r.Context(), providerID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, estimate)
}

// ViewEstimateHandler records the homeowner opening an estimate.
func (h *Handlers) ViewEstimateHandler(w http.ResponseWriter, r *http.Request) {
	estimateID, ok := h.pathUUID(w, chi.URLParam(r, "estimate_id"), "estimate ID")
	if !ok {
		return
	}

	estimate, err := h.payments.MarkEstimateViewed(r.Context(), estimateID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, estimate)
}

// ApproveEstimateHandler approves an estimate: an authorization hold for the
// total plus buffer is placed before anything is recorded.
func (h *Handlers) ApproveEstimateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	estimateID, ok := h.pathUUID(w, chi.URLParam(r, "estimate_id"), "estimate ID")
	if !ok {
		return
	}
	if !h.enforcePaymentRateLimit(w, r, "approve_estimate", userID) {
		return
	}

	result, err := h.payments.ApproveEstimate(r.Context(), estimateID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=approve_estimate outcome=failed estimate_id=%s err=%v", estimateID, err)
		h.handleServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=approve_estimate outcome=approved estimate_id=%s authorized=%d", estimateID, result.AuthorizedAmount)
	h.writeJSON(w, http.StatusOK, result)
}

// RejectEstimateHandler declines a sent or viewed estimate.
func (h *Handlers) RejectEstimateHandler(w http.ResponseWriter, r *http.Request) {
	estimateID, ok := h.pathUUID(w, chi.URLParam(r, "estimate_id"), "estimate ID")
	if !ok {
		return
	}

	estimate, err := h.payments.RejectEstimate(r.Context(), estimateID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, estimate)
}

// CreateChangeOrderHandler evaluates a proposed increase against the buffer
// threshold and records a change order when it qualifies.
func (h *Handlers) CreateChangeOrderHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveUser(w, r); !ok {
		return
	}
	estimateID, ok := h.pathUUID(w, chi.URLParam(r, "estimate_id"), "estimate ID")
	if !ok {
		return
	}

	var payload domain.CreateChangeOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	order, err := h.payments.CreateChangeOrder(r.Context(), estimateID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, order)
}

// AcceptChangeOrderHandler accepts a pending change order, re-authorizing for
// the raised total.
func (h *Handlers) AcceptChangeOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	orderID, ok := h.pathUUID(w, chi.URLParam(r, "order_id"), "change order ID")
	if !ok {
		return
	}
	if !h.enforcePaymentRateLimit(w, r, "accept_change_order", userID) {
		return
	}

	result, err := h.payments.AcceptChangeOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=accept_change_order outcome=failed order_id=%s err=%v", orderID, err)
		h.handleServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=accept_change_order outcome=accepted order_id=%s authorized=%d", orderID, result.AuthorizedAmount)
	h.writeJSON(w, http.StatusOK, result)
}

// RejectChangeOrderHandler declines a pending change order.
func (h *Handlers) RejectChangeOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.pathUUID(w, chi.URLParam(r, "order_id"), "change order ID")
	if !ok {
		return
	}

	order, err := h.payments.RejectChangeOrder(r.Context(), orderID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// CreateInvoiceHandler records the provider's final bill.
func (h *Handlers) CreateInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.resolveUser(w, r); !ok {
		return
	}

	var payload domain.CreateInvoicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	invoice, err := h.payments.CreateInvoice(r.Context(), payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, invoice)
}

// CaptureInvoiceHandler settles the job: capture, payout split, transfer.
func (h *Handlers) CaptureInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	invoiceID, ok := h.pathUUID(w, chi.URLParam(r, "invoice_id"), "invoice ID")
	if !ok {
		return
	}
	if !h.enforcePaymentRateLimit(w, r, "capture_invoice", userID) {
		return
	}

	result, err := h.payments.CaptureInvoice(r.Context(), invoiceID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=capture_invoice outcome=failed invoice_id=%s err=%v", invoiceID, err)
		h.handleServiceError(w, err)
		return
	}

	log.Printf("level=info component=api endpoint=capture_invoice outcome=captured invoice_id=%s amount=%d payout=%d fee=%d",
		invoiceID, result.CapturedAmount, result.ProviderAmount, result.PlatformFee)
	h.writeJSON(w, http.StatusOK, result)
}

// OpenDisputeHandler opens a dispute against an invoice inside the window.
func (h *Handlers) OpenDisputeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	invoiceID, ok := h.pathUUID(w, chi.URLParam(r, "invoice_id"), "invoice ID")
	if !ok {
		return
	}

	var payload domain.OpenDisputePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	dispute, err := h.payments.OpenDispute(r.Context(), userID, invoiceID, payload)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, dispute)
}
