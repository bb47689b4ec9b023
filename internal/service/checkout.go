package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/metrics"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
)

// CheckoutItem is one requested line of a checkout.
type CheckoutItem struct {
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutRequest is the charge-first checkout input. The card is a gateway
// token; amounts for shipping and tax arrive precomputed in minor units.
type CheckoutRequest struct {
	BuyerID         string              `json:"buyer_id"`
	Email           string              `json:"email"`
	Items           []CheckoutItem      `json:"items"`
	ShippingAddress models.Address      `json:"shipping_address"`
	BillingAddress  models.Address      `json:"billing_address"`
	Card            gateway.CardDetails `json:"card"`
	ShippingCents   int64               `json:"shipping_cents"`
	TaxCents        int64               `json:"tax_cents"`
	Currency        string              `json:"currency"`
}

// CheckoutResult is the outcome of a charge-first checkout. A card decline
// is Approved=false with a reason; errors are reserved for validation,
// transport, and recovery-path failures.
type CheckoutResult struct {
	Approved      bool          `json:"approved"`
	DeclineReason string        `json:"decline_reason,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Order         *models.Order `json:"order,omitempty"`
}

// CreateOrderRequest is the order-first input: a pending order awaiting
// out-of-band payment confirmation, with totals precomputed by the caller.
type CreateOrderRequest struct {
	BuyerID         string         `json:"buyer_id"`
	Items           []CheckoutItem `json:"items"`
	ShippingAddress models.Address `json:"shipping_address"`
	BillingAddress  models.Address `json:"billing_address"`
	SubtotalCents   int64          `json:"subtotal_cents"`
	ShippingCents   int64          `json:"shipping_cents"`
	TaxCents        int64          `json:"tax_cents"`
	TotalCents      int64          `json:"total_cents"`
	Currency        string         `json:"currency"`
}

// CheckoutService drives both checkout entry points and order lifecycle
// transitions. Post-charge steps are ordered by blast radius: a failure
// recording the order escalates to recovery, while inventory decrement and
// cart clearing are non-fatal once the order is durably recorded.
type CheckoutService struct {
	orders    repository.OrderStore
	listings  repository.ListingStore
	carts     repository.CartStore
	gateway   gateway.Client
	recovery  *RecoveryService
	publisher events.Publisher
	logger    *zap.SugaredLogger
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(
	orders repository.OrderStore,
	listings repository.ListingStore,
	carts repository.CartStore,
	gw gateway.Client,
	recovery *RecoveryService,
	publisher events.Publisher,
) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		listings:  listings,
		carts:     carts,
		gateway:   gw,
		recovery:  recovery,
		publisher: publisher,
		logger:    logging.NewLogger("checkout-service"),
	}
}

// CheckoutChargeFirst validates inventory, charges the card, and only then
// records the order. A decline returns Approved=false and creates nothing.
// Once the charge has succeeded, a failure to record the order never
// surfaces as a plain error: the recovery service takes over and the caller
// receives a CriticalInconsistencyError carrying the transaction reference.
func (s *CheckoutService) CheckoutChargeFirst(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if err := validateCheckoutRequest(req); err != nil {
		return nil, err
	}

	items, subtotal, err := s.snapshotItems(ctx, req.BuyerID, req.Items, true)
	if err != nil {
		return nil, err
	}

	total := models.NewMoneyFromCents(subtotal+req.ShippingCents+req.TaxCents, req.Currency)
	orderID := "ord_" + uuid.NewString()

	billing := gateway.BillingInfo{
		Name:       req.BillingAddress.Name,
		Email:      req.Email,
		PostalCode: req.BillingAddress.PostalCode,
		Country:    req.BillingAddress.Country,
	}
	intent, err := s.gateway.CreateChargeIntent(ctx, total, billing, orderID)
	if err != nil {
		metrics.ChargesTotal.WithLabelValues("unavailable").Inc()
		return nil, err
	}

	charge, err := s.gateway.ProcessCharge(ctx, req.Card, total, intent.IntentID)
	if err != nil {
		if _, unknown := err.(*apperrors.ChargeOutcomeUnknownError); unknown {
			metrics.ChargesTotal.WithLabelValues("unknown_outcome").Inc()
		} else {
			metrics.ChargesTotal.WithLabelValues("unavailable").Inc()
		}
		return nil, err
	}

	if !charge.Approved {
		metrics.ChargesTotal.WithLabelValues("declined").Inc()
		s.logger.Infow("Charge declined",
			"buyer_id", req.BuyerID,
			"amount_cents", total.Amount,
			"reason", charge.DeclineReason,
		)
		return &CheckoutResult{Approved: false, DeclineReason: charge.DeclineReason}, nil
	}
	metrics.ChargesTotal.WithLabelValues("approved").Inc()

	// Money has moved. Everything from here either succeeds or escalates.
	now := time.Now()
	order := &models.Order{
		ID:                   orderID,
		BuyerID:              req.BuyerID,
		Status:               models.OrderStatusProcessing,
		PaymentStatus:        models.PaymentStatusCompleted,
		Subtotal:             models.NewMoneyFromCents(subtotal, req.Currency),
		ShippingCost:         models.NewMoneyFromCents(req.ShippingCents, req.Currency),
		TaxAmount:            models.NewMoneyFromCents(req.TaxCents, req.Currency),
		Total:                total,
		ShippingAddress:      req.ShippingAddress,
		BillingAddress:       req.BillingAddress,
		GatewayTransactionID: charge.TransactionID,
		CreatedAt:            now,
		UpdatedAt:            now,
		PaidAt:               &now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.recovery.HandleCriticalFailure(ctx, charge.TransactionID, req.BuyerID, req.Email, total,
			fmt.Sprintf("order insert failed after successful charge: %v", err))
		return nil, &apperrors.CriticalInconsistencyError{TransactionID: charge.TransactionID, Cause: err}
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.orders.InsertItems(ctx, items); err != nil {
		if reviewErr := s.orders.MarkNeedsReview(ctx, order.ID); reviewErr != nil {
			s.logger.Errorw("Failed to flag order for review",
				"order_id", order.ID, "error", reviewErr.Error())
		}
		s.recovery.HandleCriticalFailure(ctx, charge.TransactionID, req.BuyerID, req.Email, total,
			fmt.Sprintf("item insert failed for order %s after successful charge: %v", order.ID, err))
		return nil, &apperrors.CriticalInconsistencyError{TransactionID: charge.TransactionID, Cause: err}
	}
	order.Items = items

	// Order is correctly recorded; the remaining steps are eventually
	// consistent.
	for _, item := range items {
		if err := s.listings.DecrementQuantity(ctx, item.ListingID, item.Quantity); err != nil {
			s.logger.Errorw("Inventory decrement failed after checkout",
				"order_id", order.ID,
				"listing_id", item.ListingID,
				"error", err.Error(),
			)
		}
	}
	if err := s.carts.Clear(ctx, req.BuyerID); err != nil {
		s.logger.Errorw("Cart clear failed after checkout",
			"order_id", order.ID, "buyer_id", req.BuyerID, "error", err.Error())
	}

	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logger.Errorw("Order created event publish failed", "order_id", order.ID, "error", err.Error())
	}
	metrics.OrdersCreatedTotal.WithLabelValues("charge_first").Inc()

	s.logger.Infow("Checkout completed",
		"order_id", order.ID,
		"buyer_id", req.BuyerID,
		"transaction_id", charge.TransactionID,
		"total_cents", total.Amount,
	)

	return &CheckoutResult{
		Approved:      true,
		TransactionID: charge.TransactionID,
		Order:         order,
	}, nil
}

// CreateOrderPending is the order-first entry point: a pending order whose
// payment is confirmed later by webhook. No money has moved, so a failure
// inserting items compensates by deleting the order row.
func (s *CheckoutService) CreateOrderPending(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	if err := validateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	items, _, err := s.snapshotItems(ctx, req.BuyerID, req.Items, false)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:              "ord_" + uuid.NewString(),
		BuyerID:         req.BuyerID,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		Subtotal:        models.NewMoneyFromCents(req.SubtotalCents, req.Currency),
		ShippingCost:    models.NewMoneyFromCents(req.ShippingCents, req.Currency),
		TaxAmount:       models.NewMoneyFromCents(req.TaxCents, req.Currency),
		Total:           models.NewMoneyFromCents(req.TotalCents, req.Currency),
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.orders.InsertItems(ctx, items); err != nil {
		if delErr := s.orders.DeleteOrder(ctx, order.ID); delErr != nil {
			s.logger.Errorw("Compensating order delete failed",
				"order_id", order.ID, "error", delErr.Error())
		}
		return nil, err
	}
	order.Items = items

	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		s.logger.Errorw("Order created event publish failed", "order_id", order.ID, "error", err.Error())
	}
	metrics.OrdersCreatedTotal.WithLabelValues("order_first").Inc()

	s.logger.Infow("Pending order created", "order_id", order.ID, "buyer_id", req.BuyerID)
	return order, nil
}

// snapshotItems resolves the requested listings and captures their current
// prices as order lines. When enforceInventory is set it additionally
// requires each listing to be active, to cover the requested quantity, and
// to belong to someone other than the buyer; these checks run before the
// gateway is ever touched.
func (s *CheckoutService) snapshotItems(ctx context.Context, buyerID string, reqItems []CheckoutItem, enforceInventory bool) ([]models.OrderItem, int64, error) {
	ids := make([]string, 0, len(reqItems))
	for _, item := range reqItems {
		ids = append(ids, item.ListingID)
	}

	listings, err := s.listings.GetByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]models.OrderItem, 0, len(reqItems))
	var subtotal int64
	for _, reqItem := range reqItems {
		listing, ok := listings[reqItem.ListingID]
		if !ok {
			return nil, 0, apperrors.NewValidationError("items",
				fmt.Sprintf("listing %s does not exist", reqItem.ListingID))
		}
		if enforceInventory {
			if !listing.IsActive() {
				return nil, 0, apperrors.NewValidationError("items",
					fmt.Sprintf("listing %s is no longer available", listing.ID))
			}
			if listing.Quantity < reqItem.Quantity {
				return nil, 0, &apperrors.InsufficientQuantityError{
					ListingID: listing.ID,
					Requested: reqItem.Quantity,
					Available: listing.Quantity,
				}
			}
			if listing.SellerID == buyerID {
				return nil, 0, apperrors.NewValidationError("items",
					"you cannot purchase your own listing")
			}
		}

		items = append(items, models.OrderItem{
			ID:          "itm_" + uuid.NewString(),
			ListingID:   listing.ID,
			SellerID:    listing.SellerID,
			CardName:    listing.CardName,
			Quantity:    reqItem.Quantity,
			PriceAtTime: listing.Price,
		})
		subtotal += listing.Price.Amount * int64(reqItem.Quantity)
	}

	return items, subtotal, nil
}

// GetOrder retrieves one order with its items.
func (s *CheckoutService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders retrieves orders matching the filter, newest first.
func (s *CheckoutService) ListOrders(ctx context.Context, filter *repository.OrderListFilter) ([]*models.Order, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orders.List(ctx, filter)
}

// UpdateOrderStatus transitions an order through its state machine. The
// caller must be the buyer, the seller of one of the order's items, or an
// admin.
func (s *CheckoutService) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus, callerID string, isAdmin bool) (*models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !s.canManageOrder(order, callerID, isAdmin) {
		return nil, apperrors.ErrForbidden
	}

	if !models.CanTransition(order.Status, status) {
		return nil, apperrors.NewValidationError("status",
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, status))
	}

	previous := order.Status
	updated, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishOrderStatusChanged(ctx, updated, previous); err != nil {
		s.logger.Errorw("Status change event publish failed", "order_id", orderID, "error", err.Error())
	}

	s.logger.Infow("Order status updated",
		"order_id", orderID,
		"from", previous,
		"to", status,
		"caller", callerID,
	)
	return updated, nil
}

func (s *CheckoutService) canManageOrder(order *models.Order, callerID string, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if callerID == "" {
		return false
	}
	if order.BuyerID == callerID {
		return true
	}
	for _, item := range order.Items {
		if item.SellerID == callerID {
			return true
		}
	}
	return false
}
