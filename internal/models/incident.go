package models

import "time"

// IncidentStatus is the state of a critical payment incident. Transitions
// are one-way except for explicit admin resolution.
type IncidentStatus string

const (
	IncidentStatusNeedsManualReview IncidentStatus = "needs_manual_review"
	IncidentStatusAutoRefunded      IncidentStatus = "auto_refunded"
	IncidentStatusResolved          IncidentStatus = "resolved"
)

// CriticalPaymentError is the durable incident record for a charge that
// succeeded without a corresponding order being recorded. Created only by
// the recovery service.
type CriticalPaymentError struct {
	ID               string         `json:"id"`
	TransactionID    string         `json:"transaction_id"`
	BuyerID          string         `json:"buyer_id"`
	Amount           Money          `json:"amount"`
	ErrorDetail      string         `json:"error_detail"`
	Status           IncidentStatus `json:"status"`
	RefundID         string         `json:"refund_id,omitempty"`
	ResolutionMethod string         `json:"resolution_method,omitempty"`
	ResolutionNotes  string         `json:"resolution_notes,omitempty"`
	ResolvedBy       string         `json:"resolved_by,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
}
