package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/metrics"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/notifications"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
)

// RecoveryService handles the charged-but-not-recorded case: a successful
// charge whose order could not be persisted. It never returns an error to
// the checkout path; every step is individually fault-tolerant and at least
// one alert channel is attempted no matter what fails.
type RecoveryService struct {
	incidents repository.IncidentStore
	gateway   gateway.Client
	notifier  notifications.Sender
	publisher events.Publisher
	cfg       config.RecoveryConfig
	logger    *zap.SugaredLogger
}

// NewRecoveryService creates a recovery service.
func NewRecoveryService(
	incidents repository.IncidentStore,
	gw gateway.Client,
	notifier notifications.Sender,
	publisher events.Publisher,
	cfg config.RecoveryConfig,
) *RecoveryService {
	return &RecoveryService{
		incidents: incidents,
		gateway:   gw,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logging.NewLogger("recovery-service"),
	}
}

// HandleCriticalFailure records the incident, optionally auto-refunds, and
// alerts operators. Called before the checkout response is sent, so the
// incident write (or its fallback) has completed by the time the buyer sees
// the support reference.
func (s *RecoveryService) HandleCriticalFailure(ctx context.Context, txnID, buyerID, buyerEmail string, amount models.Money, errDetail string) *models.CriticalPaymentError {
	metrics.CriticalIncidentsTotal.Inc()

	incident := &models.CriticalPaymentError{
		ID:            "cpe_" + uuid.NewString(),
		TransactionID: txnID,
		BuyerID:       buyerID,
		Amount:        amount,
		ErrorDetail:   errDetail,
		Status:        models.IncidentStatusNeedsManualReview,
		CreatedAt:     time.Now(),
	}

	s.logger.Errorw("CRITICAL payment inconsistency",
		"alert", "critical_payment",
		"transaction_id", txnID,
		"buyer_id", buyerID,
		"amount_cents", amount.Amount,
		"detail", errDetail,
	)

	persisted := true
	if err := s.incidents.Create(ctx, incident); err != nil {
		persisted = false
		s.logger.Errorw("Incident store write failed, falling back to event channel",
			"transaction_id", txnID,
			"error", err.Error(),
		)
		if pubErr := s.publisher.PublishPaymentCritical(ctx, incident); pubErr != nil {
			s.escalate(ctx, incident, err, pubErr)
		}
	}

	if persisted && s.cfg.AutoRefundEnabled {
		s.attemptAutoRefund(ctx, incident, buyerEmail)
	}

	s.notifyOps(ctx, incident)

	return incident
}

// attemptAutoRefund refunds the charge and advances the incident to
// auto_refunded. Refund failure leaves the incident at needs_manual_review.
func (s *RecoveryService) attemptAutoRefund(ctx context.Context, incident *models.CriticalPaymentError, buyerEmail string) {
	refund, err := s.gateway.Refund(ctx, incident.TransactionID, incident.Amount, "automatic recovery refund")
	if err != nil {
		s.logger.Errorw("Auto-refund failed, incident stays in manual review",
			"incident_id", incident.ID,
			"transaction_id", incident.TransactionID,
			"error", err.Error(),
		)
		return
	}

	if err := s.incidents.MarkAutoRefunded(ctx, incident.ID, refund.RefundID); err != nil {
		s.logger.Errorw("Refund succeeded but incident update failed",
			"incident_id", incident.ID,
			"refund_id", refund.RefundID,
			"error", err.Error(),
		)
		return
	}
	incident.Status = models.IncidentStatusAutoRefunded
	incident.RefundID = refund.RefundID

	s.logger.Infow("Incident auto-refunded",
		"incident_id", incident.ID,
		"refund_id", refund.RefundID,
	)

	if buyerEmail != "" {
		body := fmt.Sprintf(
			"Your payment could not be completed and has been fully refunded.\n"+
				"Refund reference: %s\nAmount: %s\n\nNo action is needed on your part.",
			refund.RefundID, incident.Amount,
		)
		if err := s.notifier.SendEmail(ctx, buyerEmail, "Your CardHaven payment was refunded", body); err != nil {
			s.logger.Errorw("Buyer refund email failed", "incident_id", incident.ID, "error", err.Error())
		}
	}
}

// notifyOps alerts the operations inbox. Runs regardless of refund outcome.
func (s *RecoveryService) notifyOps(ctx context.Context, incident *models.CriticalPaymentError) {
	body := fmt.Sprintf(
		"Critical payment incident %s\nTransaction: %s\nBuyer: %s\nAmount: %s\nStatus: %s\nDetail: %s",
		incident.ID, incident.TransactionID, incident.BuyerID,
		incident.Amount, incident.Status, incident.ErrorDetail,
	)
	if err := s.notifier.SendEmail(ctx, s.cfg.OpsEmail, "CRITICAL: payment charged without order", body); err != nil {
		s.logger.Errorw("Ops alert email failed",
			"incident_id", incident.ID,
			"transaction_id", incident.TransactionID,
			"error", err.Error(),
		)
	}
}

// escalate is the terminal path: the store and the event fallback both
// failed. Page the on-call through the independent escalation address.
func (s *RecoveryService) escalate(ctx context.Context, incident *models.CriticalPaymentError, storeErr, fallbackErr error) {
	s.logger.Errorw("MAXIMUM ESCALATION: incident could not be recorded anywhere",
		"alert", "critical_payment_escalation",
		"transaction_id", incident.TransactionID,
		"store_error", storeErr.Error(),
		"fallback_error", fallbackErr.Error(),
	)

	body := fmt.Sprintf(
		"UNRECORDED critical payment incident.\nTransaction: %s\nBuyer: %s\nAmount: %s\nDetail: %s\n\n"+
			"The incident store and the event fallback both failed. Manual reconstruction required.",
		incident.TransactionID, incident.BuyerID, incident.Amount, incident.ErrorDetail,
	)
	if err := s.notifier.SendEmail(ctx, s.cfg.EscalationEmail, "PAGE: unrecorded payment incident", body); err != nil {
		// Nothing left but the tagged log line above.
		s.logger.Errorw("Escalation email failed",
			"transaction_id", incident.TransactionID,
			"error", err.Error(),
		)
	}
}

// ListIncidents lists incidents in a given status, newest first.
func (s *RecoveryService) ListIncidents(ctx context.Context, status models.IncidentStatus) ([]*models.CriticalPaymentError, error) {
	return s.incidents.ListByStatus(ctx, status)
}

// ResolveIncident marks an incident resolved by an operator. Pure state
// transition; no gateway side effects.
func (s *RecoveryService) ResolveIncident(ctx context.Context, id, method, notes, operatorID string) (*models.CriticalPaymentError, error) {
	return s.incidents.Resolve(ctx, id, method, notes, operatorID)
}
