package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// SellerStore is the seller-account surface the payout pipeline depends on.
type SellerStore interface {
	GetByID(ctx context.Context, id string) (*models.Seller, error)
	ListPayoutCandidates(ctx context.Context) ([]*models.Seller, error)
}

// PostgresSellerStore implements SellerStore on PostgreSQL.
type PostgresSellerStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresSellerStore creates a Postgres-backed seller store.
func NewPostgresSellerStore(db *sql.DB) *PostgresSellerStore {
	return &PostgresSellerStore{
		db:     db,
		logger: logging.NewLogger("seller-store"),
	}
}

const sellerColumns = `
	id, email, approved, suspended, auto_payout_enabled,
	payout_method, bank_account_ref, paypal_email, payout_threshold_cents,
	created_at
`

// GetByID fetches one seller account.
func (s *PostgresSellerStore) GetByID(ctx context.Context, id string) (*models.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`

	seller, err := scanSeller(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		s.logger.Errorw("Failed to fetch seller", "seller_id", id, "error", err.Error())
		return nil, err
	}
	return seller, nil
}

// ListPayoutCandidates returns approved, non-suspended sellers. Eligibility
// beyond account standing (thresholds, methods) is the orchestrator's call.
func (s *PostgresSellerStore) ListPayoutCandidates(ctx context.Context) ([]*models.Seller, error) {
	query := `
		SELECT ` + sellerColumns + `
		FROM sellers
		WHERE approved = true AND suspended = false
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sellers := make([]*models.Seller, 0)
	for rows.Next() {
		seller, err := scanSeller(rows)
		if err != nil {
			return nil, err
		}
		sellers = append(sellers, seller)
	}
	return sellers, rows.Err()
}

func scanSeller(row rowScanner) (*models.Seller, error) {
	var seller models.Seller
	var method, bankRef, paypal sql.NullString

	err := row.Scan(
		&seller.ID,
		&seller.Email,
		&seller.Approved,
		&seller.Suspended,
		&seller.AutoPayoutEnabled,
		&method,
		&bankRef,
		&paypal,
		&seller.PayoutThreshold,
		&seller.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if method.Valid {
		seller.PayoutMethod = models.PayoutMethod(method.String)
	}
	if bankRef.Valid {
		seller.BankAccountRef = bankRef.String
	}
	if paypal.Valid {
		seller.PayPalEmail = paypal.String
	}

	return &seller, nil
}
