package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// ListingStore is the listing persistence surface checkout depends on.
type ListingStore interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Listing, error)
	DecrementQuantity(ctx context.Context, listingID string, qty int) error
}

// PostgresListingStore implements ListingStore on PostgreSQL.
type PostgresListingStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresListingStore creates a Postgres-backed listing store.
func NewPostgresListingStore(db *sql.DB) *PostgresListingStore {
	return &PostgresListingStore{
		db:     db,
		logger: logging.NewLogger("listing-store"),
	}
}

// GetByIDs fetches listings keyed by id. Missing ids are absent from the map.
func (s *PostgresListingStore) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Listing, error) {
	query := `
		SELECT id, seller_id, card_id, card_name, price_cents, currency,
		       quantity, status, created_at, updated_at
		FROM listings
		WHERE id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make(map[string]*models.Listing)
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID,
			&l.SellerID,
			&l.CardID,
			&l.CardName,
			&l.Price.Amount,
			&l.Price.Currency,
			&l.Quantity,
			&l.Status,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		listings[l.ID] = &l
	}
	return listings, rows.Err()
}

// DecrementQuantity takes qty units off a listing. The decrement and its
// guard run as a single atomic update, never read-then-write, so quantity
// cannot go negative under concurrent checkouts.
func (s *PostgresListingStore) DecrementQuantity(ctx context.Context, listingID string, qty int) error {
	query := `
		UPDATE listings
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`

	result, err := s.db.ExecContext(ctx, query, listingID, qty)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var available int
		if err := s.db.QueryRowContext(ctx,
			`SELECT quantity FROM listings WHERE id = $1`, listingID,
		).Scan(&available); err == sql.ErrNoRows {
			return apperrors.ErrNotFound
		} else if err != nil {
			return err
		}
		return &apperrors.InsufficientQuantityError{
			ListingID: listingID,
			Requested: qty,
			Available: available,
		}
	}

	s.logger.Debugw("Listing quantity decremented", "listing_id", listingID, "qty", qty)
	return nil
}
