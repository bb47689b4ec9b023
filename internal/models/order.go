package models

import "time"

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusProcessing    OrderStatus = "processing"
	OrderStatusShipped       OrderStatus = "shipped"
	OrderStatusDelivered     OrderStatus = "delivered"
	OrderStatusCompleted     OrderStatus = "completed"
	OrderStatusCancelled     OrderStatus = "cancelled"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	// OrderStatusNeedsReview is absorbing: an order lands here when the
	// charge succeeded but the order contents could not be fully recorded.
	OrderStatusNeedsReview OrderStatus = "needs_review"
)

// PaymentStatus tracks the money side of an order, independent of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Address is a structured shipping or billing address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order is a buyer's purchase. payment_status=completed implies a non-empty
// GatewayTransactionID.
type Order struct {
	ID                   string        `json:"id"`
	BuyerID              string        `json:"buyer_id"`
	Status               OrderStatus   `json:"status"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	Subtotal             Money         `json:"subtotal"`
	ShippingCost         Money         `json:"shipping_cost"`
	TaxAmount            Money         `json:"tax_amount"`
	Total                Money         `json:"total"`
	ShippingAddress      Address       `json:"shipping_address"`
	BillingAddress       Address       `json:"billing_address"`
	GatewayTransactionID string        `json:"gateway_transaction_id,omitempty"`
	PayoutProcessed      bool          `json:"payout_processed"`
	PayoutID             string        `json:"payout_id,omitempty"`
	Items                []OrderItem   `json:"items,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
	PaidAt               *time.Time    `json:"paid_at,omitempty"`
	DeliveredAt          *time.Time    `json:"delivered_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	RefundedAt           *time.Time    `json:"refunded_at,omitempty"`
}

// OrderItem is a line of an order. PriceAtTime is the listing price captured
// when the order was created and is immutable after insert.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ListingID   string `json:"listing_id"`
	SellerID    string `json:"seller_id"`
	CardName    string `json:"card_name"`
	Quantity    int    `json:"quantity"`
	PriceAtTime Money  `json:"price_at_time"`
}

// validStatusTransitions is the order state machine. needs_review has no
// outgoing edges; it is resolved through the incident workflow, not here.
var validStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:       {OrderStatusProcessing, OrderStatusCancelled, OrderStatusPaymentFailed},
	OrderStatusProcessing:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:       {OrderStatusDelivered},
	OrderStatusDelivered:     {OrderStatusCompleted},
	OrderStatusCompleted:     {},
	OrderStatusCancelled:     {},
	OrderStatusPaymentFailed: {},
	OrderStatusNeedsReview:   {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsValidOrderStatus reports whether s is one of the enumerated statuses.
func IsValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled,
		OrderStatusPaymentFailed, OrderStatusNeedsReview:
		return true
	}
	return false
}
