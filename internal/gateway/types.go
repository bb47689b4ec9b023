package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// Client is the card-processor boundary. Every method is a remote call and
// network failure is a first-class outcome. Business-level declines come
// back inside results; returned errors mean transport or auth failure.
type Client interface {
	CreateChargeIntent(ctx context.Context, amount models.Money, billing BillingInfo, orderRef string) (*ChargeIntent, error)
	ProcessCharge(ctx context.Context, card CardDetails, amount models.Money, intentID string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount models.Money, reason string) (*RefundResult, error)
	DisbursePayout(ctx context.Context, destination string, amount models.Money, method models.PayoutMethod, reference string) (*PayoutResult, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// BillingInfo is the cardholder identity sent with an intent.
type BillingInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// CardDetails is a tokenized card reference. Raw PANs never enter this
// service.
type CardDetails struct {
	Token       string `json:"token"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
}

// ChargeIntent is the gateway's handle for a charge about to happen.
type ChargeIntent struct {
	IntentID    string `json:"intent_id"`
	ClientToken string `json:"client_token"`
}

// ChargeResult is the outcome of a charge attempt. A decline is
// Approved=false with a reason, not an error.
type ChargeResult struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

// RefundResult is the outcome of a refund call.
type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// PayoutResult is the outcome of a disbursement call.
type PayoutResult struct {
	PayoutID         string     `json:"payout_id"`
	Status           string     `json:"status"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}

// Event types the gateway posts to the webhook endpoint.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
)

// Event is one webhook notification. Gateways retry delivery, so the same
// event can arrive more than once.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PayoutRef     string          `json:"payout_ref,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
