/**
 * @description
 * Orchestration for the marketplace money flow: diagnostic fee, estimate
 * authorization, change orders, invoice capture with payout split, and
 * disputes. The service sequences the payment processor, the database and the
 * event bus; guard evaluation lives in the billing package and state
 * transitions are enforced by the store's conditional updates.
 *
 * @notes
 * - External calls run sequentially with no retries or compensation. A failure
 *   partway leaves earlier steps standing and returns the error; operators
 *   reconcile from the processor dashboard.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/upkeephq/marketplace-service/internal/billing"
	"github.com/upkeephq/marketplace-service/internal/domain"
	"github.com/upkeephq/marketplace-service/internal/store"
	"github.com/upkeephq/marketplace-service/pkg/rabbitmq"
	"github.com/upkeephq/marketplace-service/pkg/stripeclient"
)

var (
	ErrDiagnosticFeeAlreadyPaid = errors.New("diagnostic fee already charged for this service request")
	ErrMissingCustomer          = errors.New("service request has no payment customer on file")
	ErrProviderPayoutsDisabled  = errors.New("provider account is not enabled for payouts")
	ErrChangeOrderExpired       = errors.New("change order has expired")
	ErrEmptyReason              = errors.New("a reason is required")
)

// PaymentProcessor is the subset of the Stripe client the service calls.
type PaymentProcessor interface {
	AuthorizePaymentIntent(ctx context.Context, customerID string, amountCents int64, metadata map[string]string) (*stripeclient.PaymentIntent, error)
	ChargeImmediate(ctx context.Context, customerID string, amountCents int64, description string) (*stripeclient.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, paymentIntentID string, amountToCapture int64) (*stripeclient.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.PaymentIntent, error)
	CreateTransfer(ctx context.Context, destinationAccountID string, amountCents int64, transferGroup string) (*stripeclient.Transfer, error)
}

// PaymentService provides the business logic for the payment lifecycle.
type PaymentService struct {
	repo      store.Repository
	processor PaymentProcessor
	publisher rabbitmq.Publisher

	authPolicy    billing.AuthorizationPolicy
	changeOrders  billing.ChangeOrderPolicy
	disputes      billing.DisputePolicy
	providerFees  billing.ProviderFeeSchedule
	homeownerFees billing.HomeownerFeeSchedule

	diagnosticFees     map[string]int64
	diagnosticFallback int64
}

// PaymentServiceConfig bundles the policy knobs for NewPaymentService.
type PaymentServiceConfig struct {
	AuthPolicy         billing.AuthorizationPolicy
	ChangeOrders       billing.ChangeOrderPolicy
	Disputes           billing.DisputePolicy
	ProviderFees       billing.ProviderFeeSchedule
	HomeownerFees      billing.HomeownerFeeSchedule
	DiagnosticFees     map[string]int64
	DiagnosticFallback int64
}

// NewPaymentService creates a new payment service instance.
func NewPaymentService(repo store.Repository, processor PaymentProcessor, publisher rabbitmq.Publisher, cfg PaymentServiceConfig) *PaymentService {
	if cfg.DiagnosticFallback <= 0 {
		cfg.DiagnosticFallback = 7500
	}
	return &PaymentService{
		repo:               repo,
		processor:          processor,
		publisher:          publisher,
		authPolicy:         cfg.AuthPolicy,
		changeOrders:       cfg.ChangeOrders,
		disputes:           cfg.Disputes,
		providerFees:       cfg.ProviderFees,
		homeownerFees:      cfg.HomeownerFees,
		diagnosticFees:     cfg.DiagnosticFees,
		diagnosticFallback: cfg.DiagnosticFallback,
	}
}

// DiagnosticFeeFor returns the upfront fee for a service category.
func (s *PaymentService) DiagnosticFeeFor(category string) int64 {
	if fee, ok := s.diagnosticFees[category]; ok && fee > 0 {
		return fee
	}
	return s.diagnosticFallback
}

// ChargeDiagnosticFee charges the category's upfront fee immediately. The
// unique constraint on service_request_id makes a double charge fail closed
// even under concurrent requests.
func (s *PaymentService) ChargeDiagnosticFee(ctx context.Context, requestID uuid.UUID) (*domain.DiagnosticFeePayment, error) {
	request, err := s.repo.FindServiceRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindDiagnosticFeePaymentByServiceRequest(ctx, requestID); err == nil {
		return nil, ErrDiagnosticFeeAlreadyPaid
	} else if !errors.Is(err, store.ErrDiagnosticFeeNotFound) {
		return nil, err
	}
	if request.StripeCustomerID == nil || *request.StripeCustomerID == "" {
		return nil, ErrMissingCustomer
	}

	fee := s.DiagnosticFeeFor(request.Category)
	intent, err := s.processor.ChargeImmediate(ctx, *request.StripeCustomerID, fee, "Diagnostic fee: "+request.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to charge diagnostic fee: %w", err)
	}

	payment := &domain.DiagnosticFeePayment{
		ID:               uuid.New(),
		ServiceRequestID: requestID,
		Category:         request.Category,
		FeeCents:         fee,
		StripeChargeID:   intent.LatestCharge,
	}
	if err := s.repo.CreateDiagnosticFeePayment(ctx, payment); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateServiceRequestStatus(ctx, requestID,
		[]string{domain.ServiceRequestStatusOpen}, domain.ServiceRequestStatusDiagnosticCharged); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after diagnostic fee\" request_id=%s error=%v", requestID, err)
	}
	return payment, nil
}

// SendEstimate creates an estimate and marks it sent in one step.
func (s *PaymentService) SendEstimate(ctx context.Context, providerID uuid.UUID, payload domain.CreateEstimatePayload) (*domain.Estimate, error) {
	if payload.TotalCents <= 0 {
		return nil, billing.ErrInvalidAmount
	}
	if _, err := s.repo.FindServiceRequestByID(ctx, payload.ServiceRequestID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	estimate := &domain.Estimate{
		ID:               uuid.New(),
		ServiceRequestID: payload.ServiceRequestID,
		ProviderID:       providerID,
		TotalCents:       payload.TotalCents,
		Status:           domain.EstimateStatusSent,
		LineItems:        payload.LineItems,
		ExpiresAt:        payload.ExpiresAt,
		SentAt:           &now,
	}
	if err := s.repo.CreateEstimate(ctx, estimate); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateServiceRequestStatus(ctx, payload.ServiceRequestID,
		[]string{domain.ServiceRequestStatusOpen, domain.ServiceRequestStatusDiagnosticCharged},
		domain.ServiceRequestStatusEstimateSent); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after estimate sent\" request_id=%s error=%v", payload.ServiceRequestID, err)
	}
	return estimate, nil
}

// MarkEstimateViewed records the homeowner opening the estimate. Only sent
// estimates transition; re-views are conflicts the handler treats as benign.
func (s *PaymentService) MarkEstimateViewed(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error) {
	return s.repo.MarkEstimateViewed(ctx, estimateID, time.Now().UTC())
}

// ApproveEstimate places a manual-capture hold for the estimate total plus the
// buffer, then records the approval. The hold is the ceiling for every capture
// downstream.
func (s *PaymentService) ApproveEstimate(ctx context.Context, estimateID uuid.UUID) (*domain.AuthorizationResult, error) {
	estimate, err := s.repo.FindEstimateByID(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	if err := billing.EstimateApprovable(estimate.Status); err != nil {
		return nil, err
	}

	request, err := s.repo.FindServiceRequestByID(ctx, estimate.ServiceRequestID)
	if err != nil {
		return nil, err
	}
	if request.StripeCustomerID == nil || *request.StripeCustomerID == "" {
		return nil, ErrMissingCustomer
	}

	authorized, buffer := s.authPolicy.AuthorizedTotal(estimate.TotalCents)
	intent, err := s.processor.AuthorizePaymentIntent(ctx, *request.StripeCustomerID, authorized, map[string]string{
		"estimate_id":        estimate.ID.String(),
		"service_request_id": estimate.ServiceRequestID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authorize payment: %w", err)
	}

	approvedAt := time.Now().UTC()
	if _, err := s.repo.ApproveEstimate(ctx, estimateID, store.ApproveEstimateParams{
		AuthorizedAmountCents: authorized,
		BufferAmountCents:     buffer,
		PaymentIntentID:       intent.ID,
		ApprovedAt:            approvedAt,
	}); err != nil {
		// The hold was placed but not recorded; release it before failing.
		if _, cancelErr := s.processor.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			log.Printf("level=ERROR component=payment_service msg=\"orphaned authorization hold\" payment_intent_id=%s error=%v", intent.ID, cancelErr)
		}
		return nil, err
	}

	if err := s.repo.UpdateServiceRequestStatus(ctx, estimate.ServiceRequestID,
		[]string{domain.ServiceRequestStatusEstimateSent}, domain.ServiceRequestStatusEstimateApproved); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after approval\" request_id=%s error=%v", estimate.ServiceRequestID, err)
	}

	s.publish(ctx, domain.EventEstimateApproved, domain.EstimateApprovedEvent{
		EstimateID:       estimate.ID,
		ServiceRequestID: estimate.ServiceRequestID,
		AuthorizedAmount: authorized,
		Timestamp:        approvedAt,
	})

	return &domain.AuthorizationResult{
		ClientSecret:     intent.ClientSecret,
		PaymentIntentID:  intent.ID,
		AuthorizedAmount: authorized,
		BufferAmount:     buffer,
		PlatformFee:      s.homeownerFees.Fee(estimate.TotalCents),
	}, nil
}

// RejectEstimate declines a sent or viewed estimate. No hold exists yet, so
// there is nothing to release.
func (s *PaymentService) RejectEstimate(ctx context.Context, estimateID uuid.UUID) (*domain.Estimate, error) {
	return s.repo.RejectEstimate(ctx, estimateID)
}

// CreateChangeOrder evaluates a proposed increase against the threshold and,
// when it qualifies, records a pending change order with a 48-hour expiry.
func (s *PaymentService) CreateChangeOrder(ctx context.Context, estimateID uuid.UUID, payload domain.CreateChangeOrderPayload) (*domain.ChangeOrder, error) {
	if payload.Reason == "" {
		return nil, ErrEmptyReason
	}

	estimate, err := s.repo.FindEstimateByID(ctx, estimateID)
	if err != nil {
		return nil, err
	}
	if estimate.Status != domain.EstimateStatusApproved {
		return nil, &billing.StateConflictError{
			Entity:   "estimate",
			Current:  estimate.Status,
			Required: []string{domain.EstimateStatusApproved},
		}
	}

	now := time.Now().UTC()
	eval, err := s.changeOrders.Evaluate(estimate.TotalCents, payload.AdditionalCents, now)
	if err != nil {
		return nil, err
	}

	order := &domain.ChangeOrder{
		ID:                 uuid.New(),
		EstimateID:         estimateID,
		OriginalTotalCents: estimate.TotalCents,
		AdditionalCents:    payload.AdditionalCents,
		NewTotalCents:      eval.NewTotalCents,
		Reason:             payload.Reason,
		Status:             domain.ChangeOrderStatusPending,
		ExpiresAt:          eval.ExpiresAt,
	}
	if err := s.repo.CreateChangeOrder(ctx, order); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventChangeOrderCreated, domain.ChangeOrderEvent{
		ChangeOrderID:   order.ID,
		EstimateID:      estimateID,
		AdditionalCents: order.AdditionalCents,
		NewTotalCents:   order.NewTotalCents,
		ExpiresAt:       order.ExpiresAt,
		Timestamp:       now,
	})
	return order, nil
}

// AcceptChangeOrder re-authorizes for the new total plus a fresh buffer,
// cancels the old hold, and raises the ceiling on the parent estimate. Expiry
// is checked at read time; the sweep job is a tidy-up, not the gate.
func (s *PaymentService) AcceptChangeOrder(ctx context.Context, orderID uuid.UUID) (*domain.AuthorizationResult, error) {
	order, err := s.repo.FindChangeOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.ChangeOrderStatusPending {
		return nil, &billing.StateConflictError{
			Entity:   "change order",
			Current:  order.Status,
			Required: []string{domain.ChangeOrderStatusPending},
		}
	}
	now := time.Now().UTC()
	if now.After(order.ExpiresAt) {
		return nil, ErrChangeOrderExpired
	}

	estimate, err := s.repo.FindEstimateByID(ctx, order.EstimateID)
	if err != nil {
		return nil, err
	}
	request, err := s.repo.FindServiceRequestByID(ctx, estimate.ServiceRequestID)
	if err != nil {
		return nil, err
	}
	if request.StripeCustomerID == nil || *request.StripeCustomerID == "" {
		return nil, ErrMissingCustomer
	}

	authorized, buffer := s.authPolicy.AuthorizedTotal(order.NewTotalCents)
	intent, err := s.processor.AuthorizePaymentIntent(ctx, *request.StripeCustomerID, authorized, map[string]string{
		"estimate_id":     estimate.ID.String(),
		"change_order_id": order.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to re-authorize payment: %w", err)
	}

	accepted, err := s.repo.AcceptChangeOrder(ctx, orderID, store.AcceptChangeOrderParams{
		PaymentIntentID:       intent.ID,
		AuthorizedAmountCents: authorized,
		RespondedAt:           now,
	})
	if err != nil {
		if _, cancelErr := s.processor.CancelPaymentIntent(ctx, intent.ID); cancelErr != nil {
			log.Printf("level=ERROR component=payment_service msg=\"orphaned re-authorization hold\" payment_intent_id=%s error=%v", intent.ID, cancelErr)
		}
		return nil, err
	}

	// Release the superseded hold. Failure here leaves a double hold that
	// expires on its own; log and continue.
	if estimate.PaymentIntentID != nil && *estimate.PaymentIntentID != "" {
		if _, err := s.processor.CancelPaymentIntent(ctx, *estimate.PaymentIntentID); err != nil {
			log.Printf("level=WARN component=payment_service msg=\"failed to release superseded hold\" payment_intent_id=%s error=%v", *estimate.PaymentIntentID, err)
		}
	}

	s.publish(ctx, domain.EventChangeOrderAccepted, domain.ChangeOrderEvent{
		ChangeOrderID:   accepted.ID,
		EstimateID:      accepted.EstimateID,
		AdditionalCents: accepted.AdditionalCents,
		NewTotalCents:   accepted.NewTotalCents,
		ExpiresAt:       accepted.ExpiresAt,
		Timestamp:       now,
	})

	return &domain.AuthorizationResult{
		ClientSecret:     intent.ClientSecret,
		PaymentIntentID:  intent.ID,
		AuthorizedAmount: authorized,
		BufferAmount:     buffer,
		PlatformFee:      s.homeownerFees.Fee(order.NewTotalCents),
	}, nil
}

// RejectChangeOrder declines a pending change order. The provider proceeds
// under the original authorization.
func (s *PaymentService) RejectChangeOrder(ctx context.Context, orderID uuid.UUID) (*domain.ChangeOrder, error) {
	order, err := s.repo.FindChangeOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.ChangeOrderStatusPending && time.Now().UTC().After(order.ExpiresAt) {
		return nil, ErrChangeOrderExpired
	}
	return s.repo.RejectChangeOrder(ctx, orderID)
}

// CreateInvoice records the provider's final bill in pending_approval. The
// ceiling check happens at capture, not here, so the homeowner can see the
// overage a capture would reject.
func (s *PaymentService) CreateInvoice(ctx context.Context, payload domain.CreateInvoicePayload) (*domain.Invoice, error) {
	if payload.TotalCents <= 0 {
		return nil, billing.ErrInvalidAmount
	}
	estimate, err := s.repo.FindEstimateByServiceRequest(ctx, payload.ServiceRequestID)
	if err != nil {
		return nil, err
	}
	if estimate.Status != domain.EstimateStatusApproved {
		return nil, &billing.StateConflictError{
			Entity:   "estimate",
			Current:  estimate.Status,
			Required: []string{domain.EstimateStatusApproved},
		}
	}

	invoice := &domain.Invoice{
		ID:               uuid.New(),
		ServiceRequestID: payload.ServiceRequestID,
		EstimateID:       estimate.ID,
		TotalCents:       payload.TotalCents,
		Status:           domain.InvoiceStatusPendingApproval,
	}
	if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateServiceRequestStatus(ctx, payload.ServiceRequestID,
		[]string{domain.ServiceRequestStatusEstimateApproved}, domain.ServiceRequestStatusInvoicePending); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after invoice\" request_id=%s error=%v", payload.ServiceRequestID, err)
	}
	return invoice, nil
}

// CaptureInvoice settles the job: validates the capture invariants, captures
// the invoice total from the hold (the remainder releases automatically),
// splits the amount, and transfers the provider's share.
func (s *PaymentService) CaptureInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.CaptureResult, error) {
	invoice, err := s.repo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	estimate, err := s.repo.FindEstimateByID(ctx, invoice.EstimateID)
	if err != nil {
		return nil, err
	}
	if err := billing.ValidateCapture(invoice.Status, estimate.PaymentIntentID, invoice.TotalCents, estimate.AuthorizedAmountCents); err != nil {
		return nil, err
	}

	provider, err := s.repo.FindProviderByID(ctx, estimate.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.PayoutsEnabled || provider.StripeAccountID == "" {
		return nil, ErrProviderPayoutsDisabled
	}

	intent, err := s.processor.CapturePaymentIntent(ctx, *estimate.PaymentIntentID, invoice.TotalCents)
	if err != nil {
		return nil, fmt.Errorf("failed to capture payment: %w", err)
	}

	settlement := billing.SettleCapture(invoice.TotalCents, s.providerFees)
	transfer, err := s.processor.CreateTransfer(ctx, provider.StripeAccountID, settlement.ProviderPayoutCents, invoice.ServiceRequestID.String())
	if err != nil {
		// Money is captured but not forwarded; record what happened and fail.
		log.Printf("level=ERROR component=payment_service msg=\"captured but transfer failed\" invoice_id=%s charge_id=%s error=%v", invoiceID, intent.LatestCharge, err)
		return nil, fmt.Errorf("failed to transfer provider payout: %w", err)
	}

	now := time.Now().UTC()
	if _, err := s.repo.MarkInvoiceCaptured(ctx, invoiceID, store.CaptureInvoiceParams{
		CapturedAmountCents: settlement.CapturedCents,
		PlatformFeeCents:    settlement.PlatformFeeCents,
		ProviderPayoutCents: settlement.ProviderPayoutCents,
		StripeChargeID:      intent.LatestCharge,
		StripeTransferID:    transfer.ID,
		CapturedAt:          now,
	}); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateServiceRequestStatus(ctx, invoice.ServiceRequestID,
		[]string{domain.ServiceRequestStatusInvoicePending}, domain.ServiceRequestStatusInvoicePaid); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after capture\" request_id=%s error=%v", invoice.ServiceRequestID, err)
	}

	s.publish(ctx, domain.EventInvoiceCaptured, domain.InvoiceCapturedEvent{
		InvoiceID:      invoiceID,
		CapturedAmount: settlement.CapturedCents,
		ProviderAmount: settlement.ProviderPayoutCents,
		PlatformFee:    settlement.PlatformFeeCents,
		Timestamp:      now,
	})

	return &domain.CaptureResult{
		ChargeID:           intent.LatestCharge,
		ProviderTransferID: transfer.ID,
		CapturedAmount:     settlement.CapturedCents,
		ProviderAmount:     settlement.ProviderPayoutCents,
		PlatformFee:        settlement.PlatformFeeCents,
	}, nil
}

// OpenDispute freezes an invoice inside the dispute window. Resolution happens
// offline; nothing transitions a dispute out of open here.
func (s *PaymentService) OpenDispute(ctx context.Context, openedBy, invoiceID uuid.UUID, payload domain.OpenDisputePayload) (*domain.Dispute, error) {
	if payload.Reason == "" {
		return nil, ErrEmptyReason
	}

	invoice, err := s.repo.FindInvoiceByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.disputes.CanOpen(invoice.Status, invoice.CreatedAt, time.Now().UTC()); err != nil {
		return nil, err
	}

	if _, err := s.repo.MarkInvoiceDisputed(ctx, invoiceID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateServiceRequestStatus(ctx, invoice.ServiceRequestID,
		[]string{domain.ServiceRequestStatusInvoicePending, domain.ServiceRequestStatusInvoicePaid},
		domain.ServiceRequestStatusDisputed); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"service request status not advanced after dispute\" request_id=%s error=%v", invoice.ServiceRequestID, err)
	}

	amount := payload.AmountDisputedCents
	if amount <= 0 {
		amount = invoice.TotalCents
	}
	dispute := &domain.Dispute{
		ID:                  uuid.New(),
		InvoiceID:           invoiceID,
		OpenedBy:            openedBy,
		Reason:              payload.Reason,
		Description:         payload.Description,
		AmountDisputedCents: amount,
		Status:              domain.DisputeStatusOpen,
	}
	if err := s.repo.CreateDispute(ctx, dispute); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventDisputeOpened, domain.DisputeOpenedEvent{
		DisputeID:      dispute.ID,
		InvoiceID:      invoiceID,
		AmountDisputed: amount,
		Reason:         payload.Reason,
		Timestamp:      time.Now().UTC(),
	})
	return dispute, nil
}

func (s *PaymentService) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, rabbitmq.MarketplaceExchange, routingKey, body); err != nil {
		log.Printf("level=WARN component=payment_service msg=\"event publish failed\" routing_key=%s error=%v", routingKey, err)
	}
}
