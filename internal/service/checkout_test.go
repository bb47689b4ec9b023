package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/notifications"
)

type checkoutFixture struct {
	svc       *CheckoutService
	orders    *mockOrderStore
	listings  *mockListingStore
	carts     *mockCartStore
	gateway   *mockGateway
	incidents *mockIncidentStore
	notifier  *notifications.MockSender
	publisher *events.MockPublisher
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		orders:    newMockOrderStore(),
		listings:  newMockListingStore(),
		carts:     &mockCartStore{},
		incidents: newMockIncidentStore(),
		notifier:  &notifications.MockSender{},
		publisher: &events.MockPublisher{},
	}
	f.gateway = &mockGateway{
		ChargeResult: &gateway.ChargeResult{
			Approved:      true,
			TransactionID: "tx_1",
			Status:        "captured",
		},
		RefundResult: &gateway.RefundResult{RefundID: "rf_1", Status: "refunded"},
	}
	f.listings.Listings["lst_1"] = &models.Listing{
		ID:       "lst_1",
		SellerID: "seller_1",
		CardName: "Charizard Holo",
		Price:    models.NewMoneyFromCents(5000, "USD"),
		Quantity: 3,
		Status:   models.ListingStatusActive,
	}

	recovery := NewRecoveryService(f.incidents, f.gateway, f.notifier, f.publisher, config.RecoveryConfig{
		AutoRefundEnabled: true,
		OpsEmail:          "ops@example.com",
		EscalationEmail:   "oncall@example.com",
	})
	f.svc = NewCheckoutService(f.orders, f.listings, f.carts, f.gateway, recovery, f.publisher)
	return f
}

func checkoutRequest() *CheckoutRequest {
	addr := models.Address{
		Name:       "Ash Ketchum",
		Line1:      "1 Pallet Town Rd",
		City:       "Pallet Town",
		PostalCode: "12345",
		Country:    "US",
	}
	return &CheckoutRequest{
		BuyerID:         "buyer_1",
		Email:           "buyer@example.com",
		Items:           []CheckoutItem{{ListingID: "lst_1", Quantity: 2}},
		ShippingAddress: addr,
		BillingAddress:  addr,
		Card:            gateway.CardDetails{Token: "tok_visa", ExpiryMonth: 12, ExpiryYear: 2030},
		ShippingCents:   500,
		TaxCents:        850,
		Currency:        "USD",
	}
}

func TestCheckoutChargeFirst_Success(t *testing.T) {
	f := newCheckoutFixture()

	result, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())
	require.NoError(t, err)
	require.True(t, result.Approved)

	order := result.Order
	require.NotNil(t, order)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, "tx_1", order.GatewayTransactionID)
	assert.NotNil(t, order.PaidAt)

	// total = 2 x 5000 + 500 shipping + 850 tax
	assert.Equal(t, int64(10000), order.Subtotal.Amount)
	assert.Equal(t, int64(11350), order.Total.Amount)

	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(5000), order.Items[0].PriceAtTime.Amount)
	assert.Equal(t, "seller_1", order.Items[0].SellerID)

	assert.Equal(t, 2, f.listings.Decremented["lst_1"])
	assert.Equal(t, []string{"buyer_1"}, f.carts.Cleared)
	assert.Empty(t, f.incidents.Incidents)
}

func TestCheckoutChargeFirst_DeclineCreatesNothing(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.ChargeResult = &gateway.ChargeResult{
		Approved:      false,
		DeclineReason: "insufficient funds",
	}

	result, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())
	require.NoError(t, err)

	assert.False(t, result.Approved)
	assert.Equal(t, "insufficient funds", result.DeclineReason)
	assert.Nil(t, result.Order)
	assert.Empty(t, f.orders.Created)
	assert.Empty(t, f.listings.Decremented)
	assert.Empty(t, f.carts.Cleared)
}

func TestCheckoutChargeFirst_InventoryCheckedBeforeGateway(t *testing.T) {
	f := newCheckoutFixture()

	req := checkoutRequest()
	req.Items[0].Quantity = 10

	_, err := f.svc.CheckoutChargeFirst(context.Background(), req)

	var qtyErr *apperrors.InsufficientQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, "lst_1", qtyErr.ListingID)
	assert.Equal(t, 10, qtyErr.Requested)
	assert.Equal(t, 3, qtyErr.Available)
	assert.Equal(t, 0, f.gateway.ChargeCalls)
}

func TestCheckoutChargeFirst_BuyerCannotBuyOwnListing(t *testing.T) {
	f := newCheckoutFixture()

	req := checkoutRequest()
	req.BuyerID = "seller_1"

	_, err := f.svc.CheckoutChargeFirst(context.Background(), req)

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 0, f.gateway.ChargeCalls)
}

func TestCheckoutChargeFirst_InactiveListingRejected(t *testing.T) {
	f := newCheckoutFixture()
	f.listings.Listings["lst_1"].Status = models.ListingStatusInactive

	_, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 0, f.gateway.ChargeCalls)
}

func TestCheckoutChargeFirst_OrderInsertFailureEngagesRecovery(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.CreateErr = errors.New("connection reset")

	_, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())

	var criticalErr *apperrors.CriticalInconsistencyError
	require.ErrorAs(t, err, &criticalErr)
	assert.Equal(t, "tx_1", criticalErr.TransactionID)

	// Incident persisted before the caller sees the error.
	require.Len(t, f.incidents.Incidents, 1)
	incident := f.incidents.Incidents[0]
	assert.Equal(t, "tx_1", incident.TransactionID)
	assert.Equal(t, "buyer_1", incident.BuyerID)
	assert.Equal(t, int64(11350), incident.Amount.Amount)

	// Ops alert attempted.
	var opsAlerted bool
	for _, email := range f.notifier.Emails {
		if email.To == "ops@example.com" {
			opsAlerted = true
		}
	}
	assert.True(t, opsAlerted)
}

func TestCheckoutChargeFirst_ItemInsertFailureFlagsReview(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.InsertItemsErr = errors.New("deadlock detected")

	_, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())

	var criticalErr *apperrors.CriticalInconsistencyError
	require.ErrorAs(t, err, &criticalErr)

	require.Len(t, f.orders.Created, 1)
	assert.Equal(t, []string{f.orders.Created[0].ID}, f.orders.FlaggedReview)
	require.Len(t, f.incidents.Incidents, 1)
}

func TestCheckoutChargeFirst_UnknownOutcomeNeverCreatesOrder(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.ChargeErr = &apperrors.ChargeOutcomeUnknownError{Reference: "int_ref"}

	_, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())

	var unknownErr *apperrors.ChargeOutcomeUnknownError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "int_ref", unknownErr.Reference)
	assert.Empty(t, f.orders.Created)
	assert.Empty(t, f.incidents.Incidents)
}

func TestCheckoutChargeFirst_DecrementFailureIsNonFatal(t *testing.T) {
	f := newCheckoutFixture()
	f.listings.DecrementErr = errors.New("lock timeout")

	result, err := f.svc.CheckoutChargeFirst(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.True(t, result.Approved)
	require.Len(t, f.orders.Created, 1)
}

func TestCreateOrderPending_Success(t *testing.T) {
	f := newCheckoutFixture()

	req := &CreateOrderRequest{
		BuyerID:         "buyer_1",
		Items:           []CheckoutItem{{ListingID: "lst_1", Quantity: 1}},
		ShippingAddress: checkoutRequest().ShippingAddress,
		BillingAddress:  checkoutRequest().BillingAddress,
		SubtotalCents:   5000,
		ShippingCents:   500,
		TaxCents:        425,
		TotalCents:      5925,
		Currency:        "USD",
	}

	order, err := f.svc.CreateOrderPending(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Empty(t, order.GatewayTransactionID)
	assert.Equal(t, 0, f.gateway.ChargeCalls)
	// No inventory is taken until payment confirms.
	assert.Empty(t, f.listings.Decremented)
}

func TestCreateOrderPending_ItemFailureCompensates(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.InsertItemsErr = errors.New("disk full")

	req := &CreateOrderRequest{
		BuyerID:         "buyer_1",
		Items:           []CheckoutItem{{ListingID: "lst_1", Quantity: 1}},
		ShippingAddress: checkoutRequest().ShippingAddress,
		BillingAddress:  checkoutRequest().BillingAddress,
		SubtotalCents:   5000,
		TotalCents:      5000,
		Currency:        "USD",
	}

	_, err := f.svc.CreateOrderPending(context.Background(), req)
	require.Error(t, err)

	require.Len(t, f.orders.Created, 1)
	assert.Equal(t, []string{f.orders.Created[0].ID}, f.orders.Deleted)
	// No money moved, so no incident.
	assert.Empty(t, f.incidents.Incidents)
}

func TestUpdateOrderStatus_Authorization(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.Orders["ord_1"] = &models.Order{
		ID:      "ord_1",
		BuyerID: "buyer_1",
		Status:  models.OrderStatusProcessing,
		Items:   []models.OrderItem{{SellerID: "seller_1"}},
	}

	_, err := f.svc.UpdateOrderStatus(context.Background(), "ord_1", models.OrderStatusShipped, "stranger", false)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	order, err := f.svc.UpdateOrderStatus(context.Background(), "ord_1", models.OrderStatusShipped, "seller_1", false)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
}

func TestUpdateOrderStatus_InvalidTransition(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.Orders["ord_1"] = &models.Order{
		ID:      "ord_1",
		BuyerID: "buyer_1",
		Status:  models.OrderStatusShipped,
	}

	_, err := f.svc.UpdateOrderStatus(context.Background(), "ord_1", models.OrderStatusPending, "buyer_1", false)

	var validationErr *apperrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestUpdateOrderStatus_AdminBypassesOwnership(t *testing.T) {
	f := newCheckoutFixture()
	f.orders.Orders["ord_1"] = &models.Order{
		ID:      "ord_1",
		BuyerID: "buyer_1",
		Status:  models.OrderStatusDelivered,
	}

	order, err := f.svc.UpdateOrderStatus(context.Background(), "ord_1", models.OrderStatusCompleted, "", true)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}
