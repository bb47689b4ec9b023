package models

import "time"

// PayoutStatus is the lifecycle state of a seller payout.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

// SellerPayout is one disbursement attempt. OrderIDs is the exact set of
// orders the amount was computed from, captured at creation; cancel and
// retry operate on this set, never a recomputed one. An order belongs to at
// most one non-cancelled payout at a time.
type SellerPayout struct {
	ID               string       `json:"id"`
	SellerID         string       `json:"seller_id"`
	Amount           Money        `json:"amount"`
	NetAmount        Money        `json:"net_amount"`
	Method           PayoutMethod `json:"method"`
	Status           PayoutStatus `json:"status"`
	OrderIDs         []string     `json:"order_ids"`
	PeriodStart      *time.Time   `json:"period_start,omitempty"`
	PeriodEnd        *time.Time   `json:"period_end,omitempty"`
	GatewayPayoutRef string       `json:"gateway_payout_ref,omitempty"`
	FailureReason    string       `json:"failure_reason,omitempty"`
	RetryCount       int          `json:"retry_count"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// EarningsOrderDetail is one order's contribution to a seller's earnings.
type EarningsOrderDetail struct {
	OrderID        string    `json:"order_id"`
	DeliveredAt    time.Time `json:"delivered_at"`
	ItemCount      int       `json:"item_count"`
	GrossSubtotal  Money     `json:"gross_subtotal"`
	SellerEarnings Money     `json:"seller_earnings"`
}

// Earnings is the result of an earnings calculation for one seller.
// TotalEarnings + PlatformCommission equals the gross subtotal exactly.
type Earnings struct {
	SellerID           string                `json:"seller_id"`
	TotalEarnings      Money                 `json:"total_earnings"`
	PlatformCommission Money                 `json:"platform_commission"`
	GrossSubtotal      Money                 `json:"gross_subtotal"`
	TotalOrders        int                   `json:"total_orders"`
	TotalItems         int                   `json:"total_items"`
	OrderDetails       []EarningsOrderDetail `json:"order_details"`
}

// EligibleSeller pairs a seller with their pending earnings for reporting
// and the automatic payout run.
type EligibleSeller struct {
	Seller          *Seller  `json:"seller"`
	PendingEarnings Money    `json:"pending_earnings"`
	OrderIDs        []string `json:"order_ids"`
	CanAutoProcess  bool     `json:"can_auto_process"`
}

// PayoutReport aggregates payouts over a period.
type PayoutReport struct {
	PeriodStart    time.Time              `json:"period_start"`
	PeriodEnd      time.Time              `json:"period_end"`
	TotalCount     int                    `json:"total_count"`
	TotalAmount    Money                  `json:"total_amount"`
	ByStatus       map[PayoutStatus]int   `json:"by_status"`
	ByMethod       map[PayoutMethod]int   `json:"by_method"`
	AmountByStatus map[PayoutStatus]Money `json:"amount_by_status"`
}
