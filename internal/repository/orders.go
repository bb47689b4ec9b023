package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// OrderStore is the order persistence surface the services depend on.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	InsertItems(ctx context.Context, items []models.OrderItem) error
	DeleteOrder(ctx context.Context, orderID string) error
	MarkNeedsReview(ctx context.Context, orderID string) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter *OrderListFilter) ([]*models.Order, int, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
	CompletePaymentByTransactionID(ctx context.Context, txnID string) (*models.Order, bool, error)
	FailPaymentByTransactionID(ctx context.Context, txnID string) (bool, error)
	DeliveredUnpaidBySeller(ctx context.Context, sellerID string, periodStart, periodEnd *time.Time) ([]*models.Order, error)
	MarkPayoutProcessed(ctx context.Context, orderIDs []string, payoutID string) error
	UnmarkPayoutProcessed(ctx context.Context, payoutID string) error
}

// OrderListFilter narrows an order listing.
type OrderListFilter struct {
	BuyerID string
	Status  *models.OrderStatus
	Limit   int
	Offset  int
}

// PostgresOrderStore implements OrderStore on PostgreSQL.
type PostgresOrderStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresOrderStore creates a Postgres-backed order store.
func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{
		db:     db,
		logger: logging.NewLogger("order-store"),
	}
}

const orderColumns = `
	id, buyer_id, status, payment_status,
	subtotal_cents, shipping_cents, tax_cents, total_cents, currency,
	shipping_address, billing_address,
	gateway_transaction_id, payout_processed, payout_id,
	created_at, updated_at, paid_at, delivered_at, completed_at, refunded_at
`

// CreateOrder inserts the order row only. Items are inserted separately;
// the two steps are individual statements by design so each has an explicit
// compensation or escalation path.
func (s *PostgresOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	billingJSON, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, buyer_id, status, payment_status,
			subtotal_cents, shipping_cents, tax_cents, total_cents, currency,
			shipping_address, billing_address,
			gateway_transaction_id, payout_processed,
			created_at, updated_at, paid_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, $13, $14, $15
		)
	`

	var txnID sql.NullString
	if order.GatewayTransactionID != "" {
		txnID = sql.NullString{String: order.GatewayTransactionID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		order.ID,
		order.BuyerID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal.Amount,
		order.ShippingCost.Amount,
		order.TaxAmount.Amount,
		order.Total.Amount,
		order.Total.Currency,
		shippingJSON,
		billingJSON,
		txnID,
		order.CreatedAt,
		order.UpdatedAt,
		order.PaidAt,
	)
	if err != nil {
		s.logger.Errorw("Failed to insert order",
			"order_id", order.ID,
			"buyer_id", order.BuyerID,
			"error", err.Error(),
		)
		return err
	}

	s.logger.Infow("Order inserted",
		"order_id", order.ID,
		"status", order.Status,
		"payment_status", order.PaymentStatus,
	)
	return nil
}

// InsertItems inserts the order's lines. Price-at-time is immutable after
// this insert; nothing in the codebase updates order_items rows.
func (s *PostgresOrderStore) InsertItems(ctx context.Context, items []models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			id, order_id, listing_id, seller_id, card_name, quantity,
			price_at_time_cents, currency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, item := range items {
		_, err := s.db.ExecContext(ctx, query,
			item.ID,
			item.OrderID,
			item.ListingID,
			item.SellerID,
			item.CardName,
			item.Quantity,
			item.PriceAtTime.Amount,
			item.PriceAtTime.Currency,
		)
		if err != nil {
			s.logger.Errorw("Failed to insert order item",
				"order_id", item.OrderID,
				"listing_id", item.ListingID,
				"error", err.Error(),
			)
			return err
		}
	}

	return nil
}

// DeleteOrder removes an order row. Compensating action for the order-first
// flow when item insertion fails before any money has moved; cascades to
// any items that did land.
func (s *PostgresOrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrNotFound
	}

	s.logger.Infow("Order deleted (compensation)", "order_id", orderID)
	return nil
}

// MarkNeedsReview moves an order into the absorbing needs_review state.
func (s *PostgresOrderStore) MarkNeedsReview(ctx context.Context, orderID string) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	_, err := s.db.ExecContext(ctx, query, orderID, models.OrderStatusNeedsReview, time.Now())
	return err
}

// GetByID retrieves an order and its items.
func (s *PostgresOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		s.logger.Errorw("Failed to fetch order", "order_id", id, "error", err.Error())
		return nil, err
	}

	items, err := s.itemsForOrders(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]

	return order, nil
}

// List retrieves orders matching the filter, newest first, with a total count.
func (s *PostgresOrderStore) List(ctx context.Context, filter *OrderListFilter) ([]*models.Order, int, error) {
	baseQuery := ` FROM orders WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.BuyerID != "" {
		args = append(args, filter.BuyerID)
		baseQuery += fmt.Sprintf(" AND buyer_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	selectQuery := "SELECT " + orderColumns + baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStatus sets the order status and stamps the lifecycle timestamp the
// new status implies. Transition validity is checked by the caller.
func (s *PostgresOrderStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	now := time.Now()

	var deliveredAt, completedAt *time.Time
	if status == models.OrderStatusDelivered {
		deliveredAt = &now
	} else if status == models.OrderStatusCompleted {
		completedAt = &now
	}

	query := `
		UPDATE orders
		SET status = $2, updated_at = $3,
		    delivered_at = COALESCE($4, delivered_at),
		    completed_at = COALESCE($5, completed_at)
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := s.db.QueryRowContext(ctx, query, id, status, now, deliveredAt, completedAt).Scan(&returnedID)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		s.logger.Errorw("Failed to update order status",
			"order_id", id,
			"status", status,
			"error", err.Error(),
		)
		return nil, err
	}

	return s.GetByID(ctx, id)
}

// CompletePaymentByTransactionID conditionally flips the order for a gateway
// transaction to paid. The status guard makes webhook replays no-ops.
func (s *PostgresOrderStore) CompletePaymentByTransactionID(ctx context.Context, txnID string) (*models.Order, bool, error) {
	now := time.Now()
	query := `
		UPDATE orders
		SET payment_status = $2, status = $3, paid_at = $4, updated_at = $4
		WHERE gateway_transaction_id = $1 AND payment_status <> $2
		RETURNING id
	`

	var orderID string
	err := s.db.QueryRowContext(ctx, query, txnID,
		models.PaymentStatusCompleted, models.OrderStatusProcessing, now,
	).Scan(&orderID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	order, err := s.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// FailPaymentByTransactionID conditionally flips the order for a gateway
// transaction to payment_failed. Completed payments are never downgraded.
func (s *PostgresOrderStore) FailPaymentByTransactionID(ctx context.Context, txnID string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = $2, status = $3, updated_at = $4
		WHERE gateway_transaction_id = $1
		  AND payment_status NOT IN ($2, $5)
	`

	result, err := s.db.ExecContext(ctx, query, txnID,
		models.PaymentStatusFailed, models.OrderStatusPaymentFailed,
		time.Now(), models.PaymentStatusCompleted,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// DeliveredUnpaidBySeller returns delivered orders carrying at least one of
// the seller's items that are not yet bound to a payout. Items on each
// returned order are restricted to this seller's lines, since an order may
// mix sellers.
func (s *PostgresOrderStore) DeliveredUnpaidBySeller(ctx context.Context, sellerID string, periodStart, periodEnd *time.Time) ([]*models.Order, error) {
	baseQuery := `
		SELECT DISTINCT ` + prefixedOrderColumns("o") + `
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE i.seller_id = $1
		  AND o.status = $2
		  AND o.payout_processed = false
	`
	args := []interface{}{sellerID, models.OrderStatusDelivered}

	if periodStart != nil {
		args = append(args, *periodStart)
		baseQuery += fmt.Sprintf(" AND o.delivered_at >= $%d", len(args))
	}
	if periodEnd != nil {
		args = append(args, *periodEnd)
		baseQuery += fmt.Sprintf(" AND o.delivered_at <= $%d", len(args))
	}
	baseQuery += " ORDER BY o.delivered_at ASC"

	rows, err := s.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	orderIDs := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := s.itemsForOrders(ctx, orderIDs)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		for _, item := range items[order.ID] {
			if item.SellerID == sellerID {
				order.Items = append(order.Items, item)
			}
		}
	}

	return orders, nil
}

// MarkPayoutProcessed binds orders to a payout. One statement per order;
// partial failure is repaired by the payout reconciliation job.
func (s *PostgresOrderStore) MarkPayoutProcessed(ctx context.Context, orderIDs []string, payoutID string) error {
	query := `
		UPDATE orders
		SET payout_processed = true, payout_id = $2, updated_at = $3
		WHERE id = $1
	`
	now := time.Now()
	for _, orderID := range orderIDs {
		if _, err := s.db.ExecContext(ctx, query, orderID, payoutID, now); err != nil {
			return fmt.Errorf("marking order %s for payout %s: %w", orderID, payoutID, err)
		}
	}
	return nil
}

// UnmarkPayoutProcessed releases every order bound to a payout. Single
// statement, so cancellation cannot leave a partial unmark.
func (s *PostgresOrderStore) UnmarkPayoutProcessed(ctx context.Context, payoutID string) error {
	query := `
		UPDATE orders
		SET payout_processed = false, payout_id = NULL, updated_at = $2
		WHERE payout_id = $1
	`
	_, err := s.db.ExecContext(ctx, query, payoutID, time.Now())
	return err
}

func (s *PostgresOrderStore) itemsForOrders(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	query := `
		SELECT id, order_id, listing_id, seller_id, card_name, quantity,
		       price_at_time_cents, currency
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]models.OrderItem)
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ListingID,
			&item.SellerID,
			&item.CardName,
			&item.Quantity,
			&item.PriceAtTime.Amount,
			&item.PriceAtTime.Currency,
		); err != nil {
			return nil, err
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var shippingJSON, billingJSON []byte
	var currency string
	var txnID, payoutID sql.NullString
	var paidAt, deliveredAt, completedAt, refundedAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.Status,
		&order.PaymentStatus,
		&order.Subtotal.Amount,
		&order.ShippingCost.Amount,
		&order.TaxAmount.Amount,
		&order.Total.Amount,
		&currency,
		&shippingJSON,
		&billingJSON,
		&txnID,
		&order.PayoutProcessed,
		&payoutID,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
		&deliveredAt,
		&completedAt,
		&refundedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Subtotal.Currency = currency
	order.ShippingCost.Currency = currency
	order.TaxAmount.Currency = currency
	order.Total.Currency = currency

	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(billingJSON, &order.BillingAddress); err != nil {
		return nil, err
	}

	if txnID.Valid {
		order.GatewayTransactionID = txnID.String
	}
	if payoutID.Valid {
		order.PayoutID = payoutID.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	if refundedAt.Valid {
		order.RefundedAt = &refundedAt.Time
	}

	return &order, nil
}

func prefixedOrderColumns(alias string) string {
	return alias + `.id, ` + alias + `.buyer_id, ` + alias + `.status, ` + alias + `.payment_status,
	` + alias + `.subtotal_cents, ` + alias + `.shipping_cents, ` + alias + `.tax_cents, ` + alias + `.total_cents, ` + alias + `.currency,
	` + alias + `.shipping_address, ` + alias + `.billing_address,
	` + alias + `.gateway_transaction_id, ` + alias + `.payout_processed, ` + alias + `.payout_id,
	` + alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.paid_at, ` + alias + `.delivered_at, ` + alias + `.completed_at, ` + alias + `.refunded_at`
}
