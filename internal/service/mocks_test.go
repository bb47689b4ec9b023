package service

import (
	"context"
	"time"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
)

// mockOrderStore implements repository.OrderStore for testing.
type mockOrderStore struct {
	Orders          map[string]*models.Order
	Delivered       []*models.Order
	CreateErr       error
	InsertItemsErr  error
	MarkReviewErr   error
	MarkPayoutErr   error
	UnmarkErr       error
	Created         []*models.Order
	InsertedItems   []models.OrderItem
	Deleted         []string
	FlaggedReview   []string
	MarkedOrders    map[string]string
	UnmarkedPayouts []string
}

func newMockOrderStore() *mockOrderStore {
	return &mockOrderStore{
		Orders:       make(map[string]*models.Order),
		MarkedOrders: make(map[string]string),
	}
}

func (m *mockOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = append(m.Created, order)
	m.Orders[order.ID] = order
	return nil
}

func (m *mockOrderStore) InsertItems(_ context.Context, items []models.OrderItem) error {
	if m.InsertItemsErr != nil {
		return m.InsertItemsErr
	}
	m.InsertedItems = append(m.InsertedItems, items...)
	return nil
}

func (m *mockOrderStore) DeleteOrder(_ context.Context, orderID string) error {
	m.Deleted = append(m.Deleted, orderID)
	delete(m.Orders, orderID)
	return nil
}

func (m *mockOrderStore) MarkNeedsReview(_ context.Context, orderID string) error {
	if m.MarkReviewErr != nil {
		return m.MarkReviewErr
	}
	m.FlaggedReview = append(m.FlaggedReview, orderID)
	if order, ok := m.Orders[orderID]; ok {
		order.Status = models.OrderStatusNeedsReview
	}
	return nil
}

func (m *mockOrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	order, ok := m.Orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

func (m *mockOrderStore) List(_ context.Context, _ *repository.OrderListFilter) ([]*models.Order, int, error) {
	orders := make([]*models.Order, 0, len(m.Orders))
	for _, order := range m.Orders {
		orders = append(orders, order)
	}
	return orders, len(orders), nil
}

func (m *mockOrderStore) UpdateStatus(_ context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	order, ok := m.Orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	order.Status = status
	return order, nil
}

func (m *mockOrderStore) CompletePaymentByTransactionID(_ context.Context, _ string) (*models.Order, bool, error) {
	return nil, false, nil
}

func (m *mockOrderStore) FailPaymentByTransactionID(_ context.Context, _ string) (bool, error) {
	return false, nil
}

func (m *mockOrderStore) DeliveredUnpaidBySeller(_ context.Context, sellerID string, _, _ *time.Time) ([]*models.Order, error) {
	matched := make([]*models.Order, 0, len(m.Delivered))
	for _, order := range m.Delivered {
		for _, item := range order.Items {
			if item.SellerID == sellerID {
				matched = append(matched, order)
				break
			}
		}
	}
	return matched, nil
}

func (m *mockOrderStore) MarkPayoutProcessed(_ context.Context, orderIDs []string, payoutID string) error {
	if m.MarkPayoutErr != nil {
		return m.MarkPayoutErr
	}
	for _, orderID := range orderIDs {
		m.MarkedOrders[orderID] = payoutID
		if order, ok := m.Orders[orderID]; ok {
			order.PayoutProcessed = true
			order.PayoutID = payoutID
		}
	}
	return nil
}

func (m *mockOrderStore) UnmarkPayoutProcessed(_ context.Context, payoutID string) error {
	if m.UnmarkErr != nil {
		return m.UnmarkErr
	}
	m.UnmarkedPayouts = append(m.UnmarkedPayouts, payoutID)
	for orderID, boundTo := range m.MarkedOrders {
		if boundTo == payoutID {
			delete(m.MarkedOrders, orderID)
			if order, ok := m.Orders[orderID]; ok {
				order.PayoutProcessed = false
				order.PayoutID = ""
			}
		}
	}
	return nil
}

// mockListingStore implements repository.ListingStore for testing.
type mockListingStore struct {
	Listings     map[string]*models.Listing
	DecrementErr error
	Decremented  map[string]int
}

func newMockListingStore() *mockListingStore {
	return &mockListingStore{
		Listings:    make(map[string]*models.Listing),
		Decremented: make(map[string]int),
	}
}

func (m *mockListingStore) GetByIDs(_ context.Context, ids []string) (map[string]*models.Listing, error) {
	found := make(map[string]*models.Listing)
	for _, id := range ids {
		if listing, ok := m.Listings[id]; ok {
			found[id] = listing
		}
	}
	return found, nil
}

func (m *mockListingStore) DecrementQuantity(_ context.Context, listingID string, qty int) error {
	if m.DecrementErr != nil {
		return m.DecrementErr
	}
	m.Decremented[listingID] += qty
	return nil
}

// mockCartStore implements repository.CartStore for testing.
type mockCartStore struct {
	ClearErr error
	Cleared  []string
}

func (m *mockCartStore) Get(_ context.Context, _ string) ([]repository.CartItem, error) {
	return nil, nil
}

func (m *mockCartStore) Set(_ context.Context, _ string, _ []repository.CartItem) error {
	return nil
}

func (m *mockCartStore) Clear(_ context.Context, buyerID string) error {
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.Cleared = append(m.Cleared, buyerID)
	return nil
}

// mockSellerStore implements repository.SellerStore for testing.
type mockSellerStore struct {
	Sellers map[string]*models.Seller
}

func newMockSellerStore() *mockSellerStore {
	return &mockSellerStore{Sellers: make(map[string]*models.Seller)}
}

func (m *mockSellerStore) GetByID(_ context.Context, id string) (*models.Seller, error) {
	seller, ok := m.Sellers[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return seller, nil
}

func (m *mockSellerStore) ListPayoutCandidates(_ context.Context) ([]*models.Seller, error) {
	candidates := make([]*models.Seller, 0)
	for _, seller := range m.Sellers {
		if seller.Approved && !seller.Suspended {
			candidates = append(candidates, seller)
		}
	}
	return candidates, nil
}

// mockIncidentStore implements repository.IncidentStore for testing.
type mockIncidentStore struct {
	CreateErr    error
	Incidents    []*models.CriticalPaymentError
	AutoRefunded map[string]string
}

func newMockIncidentStore() *mockIncidentStore {
	return &mockIncidentStore{AutoRefunded: make(map[string]string)}
}

func (m *mockIncidentStore) Create(_ context.Context, incident *models.CriticalPaymentError) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Incidents = append(m.Incidents, incident)
	return nil
}

func (m *mockIncidentStore) MarkAutoRefunded(_ context.Context, id, refundID string) error {
	m.AutoRefunded[id] = refundID
	return nil
}

func (m *mockIncidentStore) ListByStatus(_ context.Context, status models.IncidentStatus) ([]*models.CriticalPaymentError, error) {
	matched := make([]*models.CriticalPaymentError, 0)
	for _, incident := range m.Incidents {
		if incident.Status == status {
			matched = append(matched, incident)
		}
	}
	return matched, nil
}

func (m *mockIncidentStore) Resolve(_ context.Context, id, method, notes, operatorID string) (*models.CriticalPaymentError, error) {
	for _, incident := range m.Incidents {
		if incident.ID == id {
			now := time.Now()
			incident.Status = models.IncidentStatusResolved
			incident.ResolutionMethod = method
			incident.ResolutionNotes = notes
			incident.ResolvedBy = operatorID
			incident.ResolvedAt = &now
			return incident, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// mockPayoutStore implements repository.PayoutStore for testing.
type mockPayoutStore struct {
	Payouts     map[string]*models.SellerPayout
	CreateErr   error
	Created     []*models.SellerPayout
	RepairCount int64
}

func newMockPayoutStore() *mockPayoutStore {
	return &mockPayoutStore{Payouts: make(map[string]*models.SellerPayout)}
}

func (m *mockPayoutStore) Create(_ context.Context, payout *models.SellerPayout) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.Created = append(m.Created, payout)
	m.Payouts[payout.ID] = payout
	return nil
}

func (m *mockPayoutStore) GetByID(_ context.Context, id string) (*models.SellerPayout, error) {
	payout, ok := m.Payouts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return payout, nil
}

func (m *mockPayoutStore) SetProcessing(_ context.Context, id, gatewayRef string) error {
	payout, ok := m.Payouts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	payout.Status = models.PayoutStatusProcessing
	payout.GatewayPayoutRef = gatewayRef
	return nil
}

func (m *mockPayoutStore) MarkFailed(_ context.Context, id, reason string) error {
	payout, ok := m.Payouts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	payout.Status = models.PayoutStatusFailed
	payout.FailureReason = reason
	return nil
}

func (m *mockPayoutStore) Cancel(_ context.Context, id, reason string) (bool, error) {
	payout, ok := m.Payouts[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if payout.Status != models.PayoutStatusPending {
		return false, nil
	}
	payout.Status = models.PayoutStatusCancelled
	payout.FailureReason = reason
	return true, nil
}

func (m *mockPayoutStore) ResetForRetry(_ context.Context, id string) (*models.SellerPayout, bool, error) {
	payout, ok := m.Payouts[id]
	if !ok {
		return nil, false, apperrors.ErrNotFound
	}
	if payout.Status != models.PayoutStatusFailed {
		return nil, false, nil
	}
	payout.Status = models.PayoutStatusPending
	payout.RetryCount++
	return payout, true, nil
}

func (m *mockPayoutStore) CompleteByGatewayRef(_ context.Context, _ string) (*models.SellerPayout, bool, error) {
	return nil, false, nil
}

func (m *mockPayoutStore) FailByGatewayRef(_ context.Context, _, _ string) (*models.SellerPayout, bool, error) {
	return nil, false, nil
}

func (m *mockPayoutStore) ListByPeriod(_ context.Context, _, _ time.Time) ([]*models.SellerPayout, error) {
	payouts := make([]*models.SellerPayout, 0, len(m.Payouts))
	for _, payout := range m.Payouts {
		payouts = append(payouts, payout)
	}
	return payouts, nil
}

func (m *mockPayoutStore) ListFailedSince(_ context.Context, _ time.Time) ([]*models.SellerPayout, error) {
	failed := make([]*models.SellerPayout, 0)
	for _, payout := range m.Payouts {
		if payout.Status == models.PayoutStatusFailed {
			failed = append(failed, payout)
		}
	}
	return failed, nil
}

func (m *mockPayoutStore) RepairUnmarkedOrders(_ context.Context) (int64, error) {
	return m.RepairCount, nil
}

// refundCall records one refund request seen by the mock gateway.
type refundCall struct {
	TransactionID string
	AmountCents   int64
}

// disburseCall records one disbursement request seen by the mock gateway.
type disburseCall struct {
	Destination string
	AmountCents int64
	Method      models.PayoutMethod
	Reference   string
}

// mockGateway implements gateway.Client for testing.
type mockGateway struct {
	IntentErr     error
	ChargeResult  *gateway.ChargeResult
	ChargeErr     error
	RefundResult  *gateway.RefundResult
	RefundErr     error
	PayoutResult  *gateway.PayoutResult
	PayoutErr     error
	ChargeCalls   int
	RefundCalls   []refundCall
	DisburseCalls []disburseCall
}

func (m *mockGateway) CreateChargeIntent(_ context.Context, _ models.Money, _ gateway.BillingInfo, orderRef string) (*gateway.ChargeIntent, error) {
	if m.IntentErr != nil {
		return nil, m.IntentErr
	}
	return &gateway.ChargeIntent{IntentID: "int_" + orderRef, ClientToken: "ct_test"}, nil
}

func (m *mockGateway) ProcessCharge(_ context.Context, _ gateway.CardDetails, _ models.Money, _ string) (*gateway.ChargeResult, error) {
	m.ChargeCalls++
	if m.ChargeErr != nil {
		return nil, m.ChargeErr
	}
	return m.ChargeResult, nil
}

func (m *mockGateway) Refund(_ context.Context, transactionID string, amount models.Money, _ string) (*gateway.RefundResult, error) {
	m.RefundCalls = append(m.RefundCalls, refundCall{TransactionID: transactionID, AmountCents: amount.Amount})
	if m.RefundErr != nil {
		return nil, m.RefundErr
	}
	return m.RefundResult, nil
}

func (m *mockGateway) DisbursePayout(_ context.Context, destination string, amount models.Money, method models.PayoutMethod, reference string) (*gateway.PayoutResult, error) {
	m.DisburseCalls = append(m.DisburseCalls, disburseCall{
		Destination: destination,
		AmountCents: amount.Amount,
		Method:      method,
		Reference:   reference,
	})
	if m.PayoutErr != nil {
		return nil, m.PayoutErr
	}
	return m.PayoutResult, nil
}

func (m *mockGateway) VerifyWebhookSignature(_ []byte, _ string) bool {
	return true
}
