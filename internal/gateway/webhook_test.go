package gateway

import (
	"context"
	"testing"

	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// stubOrderStore simulates the conditional payment flips: the first call for
// a transaction applies, later calls report a replay.
type stubOrderStore struct {
	order     *models.Order
	completed map[string]int
	failed    map[string]int
}

func newStubOrderStore(order *models.Order) *stubOrderStore {
	return &stubOrderStore{
		order:     order,
		completed: make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (s *stubOrderStore) CompletePaymentByTransactionID(_ context.Context, txnID string) (*models.Order, bool, error) {
	s.completed[txnID]++
	if s.completed[txnID] > 1 {
		return nil, false, nil
	}
	return s.order, true, nil
}

func (s *stubOrderStore) FailPaymentByTransactionID(_ context.Context, txnID string) (bool, error) {
	s.failed[txnID]++
	return s.failed[txnID] == 1, nil
}

type stubPayoutStore struct {
	payout    *models.SellerPayout
	completed map[string]int
	failed    map[string]int
}

func newStubPayoutStore(payout *models.SellerPayout) *stubPayoutStore {
	return &stubPayoutStore{
		payout:    payout,
		completed: make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (s *stubPayoutStore) CompleteByGatewayRef(_ context.Context, ref string) (*models.SellerPayout, bool, error) {
	s.completed[ref]++
	if s.completed[ref] > 1 {
		return s.payout, false, nil
	}
	return s.payout, true, nil
}

func (s *stubPayoutStore) FailByGatewayRef(_ context.Context, ref, _ string) (*models.SellerPayout, bool, error) {
	s.failed[ref]++
	if s.failed[ref] > 1 {
		return s.payout, false, nil
	}
	return s.payout, true, nil
}

type stubDecrementer struct {
	decrements map[string]int
}

func (s *stubDecrementer) DecrementQuantity(_ context.Context, listingID string, qty int) error {
	if s.decrements == nil {
		s.decrements = make(map[string]int)
	}
	s.decrements[listingID] += qty
	return nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:                   "ord_1",
		GatewayTransactionID: "tx_1",
		Items: []models.OrderItem{
			{ListingID: "lst_1", Quantity: 2},
			{ListingID: "lst_2", Quantity: 1},
		},
	}
}

func TestHandleEvent_PaymentCompletedDecrementsOnce(t *testing.T) {
	orders := newStubOrderStore(testOrder())
	listings := &stubDecrementer{}
	processor := NewWebhookProcessor(orders, newStubPayoutStore(nil), listings, &events.MockPublisher{})

	event := &Event{ID: "evt_1", Type: EventPaymentCompleted, TransactionID: "tx_1"}

	if err := processor.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listings.decrements["lst_1"] != 2 || listings.decrements["lst_2"] != 1 {
		t.Errorf("quantities not decremented: %v", listings.decrements)
	}

	// Gateway redelivers the same event.
	if err := processor.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if listings.decrements["lst_1"] != 2 || listings.decrements["lst_2"] != 1 {
		t.Errorf("replay double-applied decrements: %v", listings.decrements)
	}
}

func TestHandleEvent_PaymentFailedIdempotent(t *testing.T) {
	orders := newStubOrderStore(testOrder())
	processor := NewWebhookProcessor(orders, newStubPayoutStore(nil), &stubDecrementer{}, &events.MockPublisher{})

	event := &Event{ID: "evt_2", Type: EventPaymentFailed, TransactionID: "tx_1"}

	if err := processor.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := processor.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if orders.failed["tx_1"] != 2 {
		t.Errorf("expected two conditional attempts, got %d", orders.failed["tx_1"])
	}
}

func TestHandleEvent_PayoutLifecycle(t *testing.T) {
	payout := &models.SellerPayout{ID: "po_1", SellerID: "seller_1"}
	payouts := newStubPayoutStore(payout)
	publisher := &events.MockPublisher{}
	processor := NewWebhookProcessor(newStubOrderStore(nil), payouts, &stubDecrementer{}, publisher)

	completed := &Event{ID: "evt_3", Type: EventPayoutCompleted, PayoutRef: "gw_po_1"}
	if err := processor.HandleEvent(context.Background(), completed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := processor.HandleEvent(context.Background(), completed); err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	// One completion event despite the redelivery.
	if len(publisher.Events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.Events))
	}
	if publisher.Events[0].Type != events.EventTypePayoutCompleted || publisher.Events[0].EntityID != "po_1" {
		t.Errorf("unexpected event %+v", publisher.Events[0])
	}

	failed := &Event{ID: "evt_4", Type: EventPayoutFailed, PayoutRef: "gw_po_2", Reason: "account closed"}
	if err := processor.HandleEvent(context.Background(), failed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.Events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(publisher.Events))
	}
	if publisher.Events[1].Type != events.EventTypePayoutFailed {
		t.Errorf("unexpected event %+v", publisher.Events[1])
	}
}

func TestHandleEvent_UnknownTypeAcknowledged(t *testing.T) {
	processor := NewWebhookProcessor(newStubOrderStore(nil), newStubPayoutStore(nil), &stubDecrementer{}, &events.MockPublisher{})

	event := &Event{ID: "evt_5", Type: "dispute.created"}
	if err := processor.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types must be acknowledged, got: %v", err)
	}
}
