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

// IncidentStore persists critical payment incidents.
type IncidentStore interface {
	Create(ctx context.Context, incident *models.CriticalPaymentError) error
	MarkAutoRefunded(ctx context.Context, id, refundID string) error
	ListByStatus(ctx context.Context, status models.IncidentStatus) ([]*models.CriticalPaymentError, error)
	Resolve(ctx context.Context, id, method, notes, operatorID string) (*models.CriticalPaymentError, error)
}

// PostgresIncidentStore implements IncidentStore on PostgreSQL.
type PostgresIncidentStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresIncidentStore creates a Postgres-backed incident store.
func NewPostgresIncidentStore(db *sql.DB) *PostgresIncidentStore {
	return &PostgresIncidentStore{
		db:     db,
		logger: logging.NewLogger("incident-store"),
	}
}

const incidentColumns = `
	id, transaction_id, buyer_id, amount_cents, currency, error_detail,
	status, refund_id, resolution_method, resolution_notes, resolved_by,
	created_at, resolved_at
`

// Create writes a new incident in needs_manual_review.
func (s *PostgresIncidentStore) Create(ctx context.Context, incident *models.CriticalPaymentError) error {
	query := `
		INSERT INTO critical_payment_errors (
			id, transaction_id, buyer_id, amount_cents, currency,
			error_detail, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		incident.ID,
		incident.TransactionID,
		incident.BuyerID,
		incident.Amount.Amount,
		incident.Amount.Currency,
		incident.ErrorDetail,
		incident.Status,
		incident.CreatedAt,
	)
	if err != nil {
		s.logger.Errorw("Failed to insert incident",
			"transaction_id", incident.TransactionID,
			"error", err.Error(),
		)
		return err
	}

	s.logger.Infow("Critical payment incident recorded",
		"incident_id", incident.ID,
		"transaction_id", incident.TransactionID,
	)
	return nil
}

// MarkAutoRefunded moves an incident to auto_refunded. Conditional on the
// current status so the transition stays one-way.
func (s *PostgresIncidentStore) MarkAutoRefunded(ctx context.Context, id, refundID string) error {
	query := `
		UPDATE critical_payment_errors
		SET status = $2, refund_id = $3
		WHERE id = $1 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, id,
		models.IncidentStatusAutoRefunded, refundID,
		models.IncidentStatusNeedsManualReview,
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

// ListByStatus lists incidents, newest first.
func (s *PostgresIncidentStore) ListByStatus(ctx context.Context, status models.IncidentStatus) ([]*models.CriticalPaymentError, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM critical_payment_errors
		WHERE status = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := make([]*models.CriticalPaymentError, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// Resolve marks an incident resolved by an operator. A pure state
// transition; no gateway side effects.
func (s *PostgresIncidentStore) Resolve(ctx context.Context, id, method, notes, operatorID string) (*models.CriticalPaymentError, error) {
	query := `
		UPDATE critical_payment_errors
		SET status = $2, resolution_method = $3, resolution_notes = $4,
		    resolved_by = $5, resolved_at = $6
		WHERE id = $1 AND status <> $2
		RETURNING ` + incidentColumns

	row := s.db.QueryRowContext(ctx, query, id,
		models.IncidentStatusResolved, method, notes, operatorID, time.Now(),
	)

	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Incident resolved",
		"incident_id", id,
		"method", method,
		"operator", operatorID,
	)
	return incident, nil
}

func scanIncident(row rowScanner) (*models.CriticalPaymentError, error) {
	var incident models.CriticalPaymentError
	var refundID, method, notes, resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&incident.ID,
		&incident.TransactionID,
		&incident.BuyerID,
		&incident.Amount.Amount,
		&incident.Amount.Currency,
		&incident.ErrorDetail,
		&incident.Status,
		&refundID,
		&method,
		&notes,
		&resolvedBy,
		&incident.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if refundID.Valid {
		incident.RefundID = refundID.String
	}
	if method.Valid {
		incident.ResolutionMethod = method.String
	}
	if notes.Valid {
		incident.ResolutionNotes = notes.String
	}
	if resolvedBy.Valid {
		incident.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid {
		incident.ResolvedAt = &resolvedAt.Time
	}

	return &incident, nil
}
