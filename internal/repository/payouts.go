package repository

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// PayoutStore persists seller payouts and their order linkage.
type PayoutStore interface {
	Create(ctx context.Context, payout *models.SellerPayout) error
	GetByID(ctx context.Context, id string) (*models.SellerPayout, error)
	SetProcessing(ctx context.Context, id, gatewayRef string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Cancel(ctx context.Context, id, reason string) (bool, error)
	ResetForRetry(ctx context.Context, id string) (*models.SellerPayout, bool, error)
	CompleteByGatewayRef(ctx context.Context, ref string) (*models.SellerPayout, bool, error)
	FailByGatewayRef(ctx context.Context, ref, reason string) (*models.SellerPayout, bool, error)
	ListByPeriod(ctx context.Context, start, end time.Time) ([]*models.SellerPayout, error)
	ListFailedSince(ctx context.Context, since time.Time) ([]*models.SellerPayout, error)
	RepairUnmarkedOrders(ctx context.Context) (int64, error)
}

// PostgresPayoutStore implements PayoutStore on PostgreSQL.
type PostgresPayoutStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresPayoutStore creates a Postgres-backed payout store.
func NewPostgresPayoutStore(db *sql.DB) *PostgresPayoutStore {
	return &PostgresPayoutStore{
		db:     db,
		logger: logging.NewLogger("payout-store"),
	}
}

const payoutColumns = `
	id, seller_id, amount_cents, net_amount_cents, currency, method, status,
	period_start, period_end, gateway_payout_ref, failure_reason, retry_count,
	created_at, updated_at, completed_at
`

// Create inserts the payout row first, then its order links. The payout row
// is the anchor: if linking fails partway, the reconciliation pass can
// rebuild the marks from payout_orders, and no order is ever marked against
// a payout that failed to create.
func (s *PostgresPayoutStore) Create(ctx context.Context, payout *models.SellerPayout) error {
	query := `
		INSERT INTO seller_payouts (
			id, seller_id, amount_cents, net_amount_cents, currency, method,
			status, period_start, period_end, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		payout.ID,
		payout.SellerID,
		payout.Amount.Amount,
		payout.NetAmount.Amount,
		payout.NetAmount.Currency,
		payout.Method,
		payout.Status,
		payout.PeriodStart,
		payout.PeriodEnd,
		payout.CreatedAt,
	)
	if err != nil {
		s.logger.Errorw("Failed to insert payout",
			"seller_id", payout.SellerID,
			"error", err.Error(),
		)
		return err
	}

	linkQuery := `INSERT INTO payout_orders (payout_id, order_id) VALUES ($1, $2)`
	for _, orderID := range payout.OrderIDs {
		if _, err := s.db.ExecContext(ctx, linkQuery, payout.ID, orderID); err != nil {
			s.logger.Errorw("Failed to link order to payout",
				"payout_id", payout.ID,
				"order_id", orderID,
				"error", err.Error(),
			)
			return err
		}
	}

	s.logger.Infow("Payout created",
		"payout_id", payout.ID,
		"seller_id", payout.SellerID,
		"order_count", len(payout.OrderIDs),
		"net_cents", payout.NetAmount.Amount,
	)
	return nil
}

// GetByID fetches a payout with its order id set.
func (s *PostgresPayoutStore) GetByID(ctx context.Context, id string) (*models.SellerPayout, error) {
	query := `SELECT ` + payoutColumns + ` FROM seller_payouts WHERE id = $1`

	payout, err := scanPayout(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderIDs(ctx, payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// SetProcessing records the gateway reference and moves pending → processing.
func (s *PostgresPayoutStore) SetProcessing(ctx context.Context, id, gatewayRef string) error {
	query := `
		UPDATE seller_payouts
		SET status = $2, gateway_payout_ref = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, id,
		models.PayoutStatusProcessing, gatewayRef, time.Now(), models.PayoutStatusPending,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// MarkFailed records a disbursement failure.
func (s *PostgresPayoutStore) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE seller_payouts
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`

	_, err := s.db.ExecContext(ctx, query, id,
		models.PayoutStatusFailed, reason, time.Now(),
		models.PayoutStatusPending, models.PayoutStatusProcessing,
	)
	return err
}

// Cancel moves a payout to cancelled. Valid only from pending; the
// conditional update reports whether it applied.
func (s *PostgresPayoutStore) Cancel(ctx context.Context, id, reason string) (bool, error) {
	query := `
		UPDATE seller_payouts
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, id,
		models.PayoutStatusCancelled, reason, time.Now(), models.PayoutStatusPending,
	)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ResetForRetry moves a failed payout back to pending and bumps the retry
// counter. The order set and amount are untouched.
func (s *PostgresPayoutStore) ResetForRetry(ctx context.Context, id string) (*models.SellerPayout, bool, error) {
	query := `
		UPDATE seller_payouts
		SET status = $2, failure_reason = NULL, retry_count = retry_count + 1,
		    updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING ` + payoutColumns

	row := s.db.QueryRowContext(ctx, query, id,
		models.PayoutStatusPending, time.Now(), models.PayoutStatusFailed,
	)

	payout, err := scanPayout(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := s.loadOrderIDs(ctx, payout); err != nil {
		return nil, false, err
	}
	return payout, true, nil
}

// CompleteByGatewayRef conditionally flips processing → completed for a
// gateway payout reference. Webhook replays find no matching row.
func (s *PostgresPayoutStore) CompleteByGatewayRef(ctx context.Context, ref string) (*models.SellerPayout, bool, error) {
	now := time.Now()
	query := `
		UPDATE seller_payouts
		SET status = $2, completed_at = $3, updated_at = $3
		WHERE gateway_payout_ref = $1 AND status = $4
		RETURNING ` + payoutColumns

	row := s.db.QueryRowContext(ctx, query, ref,
		models.PayoutStatusCompleted, now, models.PayoutStatusProcessing,
	)

	payout, err := scanPayout(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payout, true, nil
}

// FailByGatewayRef conditionally flips processing → failed for a gateway
// payout reference.
func (s *PostgresPayoutStore) FailByGatewayRef(ctx context.Context, ref, reason string) (*models.SellerPayout, bool, error) {
	query := `
		UPDATE seller_payouts
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE gateway_payout_ref = $1 AND status = $5
		RETURNING ` + payoutColumns

	row := s.db.QueryRowContext(ctx, query, ref,
		models.PayoutStatusFailed, reason, time.Now(), models.PayoutStatusProcessing,
	)

	payout, err := scanPayout(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payout, true, nil
}

// ListByPeriod returns payouts created inside [start, end].
func (s *PostgresPayoutStore) ListByPeriod(ctx context.Context, start, end time.Time) ([]*models.SellerPayout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM seller_payouts
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
	`
	return s.queryPayouts(ctx, query, start, end)
}

// ListFailedSince returns payouts that failed at or after the given time.
func (s *PostgresPayoutStore) ListFailedSince(ctx context.Context, since time.Time) ([]*models.SellerPayout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM seller_payouts
		WHERE status = $1 AND updated_at >= $2
		ORDER BY updated_at DESC
	`
	return s.queryPayouts(ctx, query, models.PayoutStatusFailed, since)
}

// RepairUnmarkedOrders reconciles the order/payout linkage in both
// directions: orders linked to a live payout but missing the
// payout_processed flag are re-marked, and orders still bound to a
// cancelled payout are released. Each direction is one statement, so the
// repair itself cannot half-apply.
func (s *PostgresPayoutStore) RepairUnmarkedOrders(ctx context.Context) (int64, error) {
	markQuery := `
		UPDATE orders o
		SET payout_processed = true, payout_id = po.payout_id, updated_at = NOW()
		FROM payout_orders po
		JOIN seller_payouts sp ON sp.id = po.payout_id
		WHERE o.id = po.order_id
		  AND o.payout_processed = false
		  AND sp.status IN ($1, $2, $3)
	`

	result, err := s.db.ExecContext(ctx, markQuery,
		models.PayoutStatusPending, models.PayoutStatusProcessing, models.PayoutStatusCompleted,
	)
	if err != nil {
		return 0, err
	}
	marked, _ := result.RowsAffected()

	releaseQuery := `
		UPDATE orders o
		SET payout_processed = false, payout_id = NULL, updated_at = NOW()
		FROM seller_payouts sp
		WHERE o.payout_id = sp.id
		  AND o.payout_processed = true
		  AND sp.status = $1
	`

	result, err = s.db.ExecContext(ctx, releaseQuery, models.PayoutStatusCancelled)
	if err != nil {
		return marked, err
	}
	released, _ := result.RowsAffected()

	repaired := marked + released
	if repaired > 0 {
		s.logger.Warnw("Repaired payout order linkage",
			"marked", marked, "released", released)
	}
	return repaired, nil
}

func (s *PostgresPayoutStore) queryPayouts(ctx context.Context, query string, args ...interface{}) ([]*models.SellerPayout, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]*models.SellerPayout, 0)
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}
	return payouts, rows.Err()
}

func (s *PostgresPayoutStore) loadOrderIDs(ctx context.Context, payout *models.SellerPayout) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id FROM payout_orders WHERE payout_id = $1 ORDER BY order_id`,
		payout.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return err
		}
		payout.OrderIDs = append(payout.OrderIDs, orderID)
	}
	return rows.Err()
}

func scanPayout(row rowScanner) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	var currency string
	var gatewayRef, failureReason sql.NullString
	var periodStart, periodEnd, completedAt sql.NullTime

	err := row.Scan(
		&payout.ID,
		&payout.SellerID,
		&payout.Amount.Amount,
		&payout.NetAmount.Amount,
		&currency,
		&payout.Method,
		&payout.Status,
		&periodStart,
		&periodEnd,
		&gatewayRef,
		&failureReason,
		&payout.RetryCount,
		&payout.CreatedAt,
		&payout.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	payout.Amount.Currency = currency
	payout.NetAmount.Currency = currency

	if gatewayRef.Valid {
		payout.GatewayPayoutRef = gatewayRef.String
	}
	if failureReason.Valid {
		payout.FailureReason = failureReason.String
	}
	if periodStart.Valid {
		payout.PeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		payout.PeriodEnd = &periodEnd.Time
	}
	if completedAt.Valid {
		payout.CompletedAt = &completedAt.Time
	}

	return &payout, nil
}
