package models

import "time"

// PayoutMethod identifies how a seller receives disbursements.
type PayoutMethod string

const (
	PayoutMethodBank   PayoutMethod = "bank_transfer"
	PayoutMethodPayPal PayoutMethod = "paypal"
)

// Seller is a marketplace seller account as the payout pipeline sees it.
type Seller struct {
	ID                string       `json:"id"`
	Email             string       `json:"email"`
	Approved          bool         `json:"approved"`
	Suspended         bool         `json:"suspended"`
	AutoPayoutEnabled bool         `json:"auto_payout_enabled"`
	PayoutMethod      PayoutMethod `json:"payout_method,omitempty"`
	// BankAccountRef and PayPalEmail are gateway-side references, never raw
	// account numbers.
	BankAccountRef string `json:"bank_account_ref,omitempty"`
	PayPalEmail    string `json:"paypal_email,omitempty"`
	// PayoutThreshold is the seller's minimum payout in minor units. Zero
	// means the platform default applies.
	PayoutThreshold int64     `json:"payout_threshold"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasPayoutMethod reports whether a complete payout destination is configured.
func (s *Seller) HasPayoutMethod() bool {
	return s.DestinationFor(s.PayoutMethod) != ""
}

// DestinationFor returns the gateway-side reference for the given payout
// method, or the empty string when the seller has not configured it.
func (s *Seller) DestinationFor(method PayoutMethod) string {
	switch method {
	case PayoutMethodBank:
		return s.BankAccountRef
	case PayoutMethodPayPal:
		return s.PayPalEmail
	}
	return ""
}
