package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/notifications"
)

type recoveryFixture struct {
	svc       *RecoveryService
	incidents *mockIncidentStore
	gateway   *mockGateway
	notifier  *notifications.MockSender
	publisher *events.MockPublisher
}

func newRecoveryFixture(autoRefund bool) *recoveryFixture {
	f := &recoveryFixture{
		incidents: newMockIncidentStore(),
		notifier:  &notifications.MockSender{},
		publisher: &events.MockPublisher{},
		gateway: &mockGateway{
			RefundResult: &gateway.RefundResult{RefundID: "rf_42", Status: "refunded"},
		},
	}
	f.svc = NewRecoveryService(f.incidents, f.gateway, f.notifier, f.publisher, config.RecoveryConfig{
		AutoRefundEnabled: autoRefund,
		OpsEmail:          "ops@example.com",
		EscalationEmail:   "oncall@example.com",
	})
	return f
}

func emailsTo(notifier *notifications.MockSender, recipient string) int {
	count := 0
	for _, email := range notifier.Emails {
		if email.To == recipient {
			count++
		}
	}
	return count
}

func TestHandleCriticalFailure_AutoRefund(t *testing.T) {
	f := newRecoveryFixture(true)

	incident := f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "buyer@example.com",
		models.NewMoneyFromCents(5000, "USD"), "order insert failed")

	require.Len(t, f.incidents.Incidents, 1)
	assert.Equal(t, "tx_1", incident.TransactionID)
	assert.Equal(t, models.IncidentStatusAutoRefunded, incident.Status)
	assert.Equal(t, "rf_42", incident.RefundID)

	// Refund issued against the exact transaction and amount.
	require.Len(t, f.gateway.RefundCalls, 1)
	assert.Equal(t, "tx_1", f.gateway.RefundCalls[0].TransactionID)
	assert.Equal(t, int64(5000), f.gateway.RefundCalls[0].AmountCents)

	assert.Equal(t, 1, emailsTo(f.notifier, "buyer@example.com"))
	assert.Equal(t, 1, emailsTo(f.notifier, "ops@example.com"))
}

func TestHandleCriticalFailure_RefundDisabled(t *testing.T) {
	f := newRecoveryFixture(false)

	incident := f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "buyer@example.com",
		models.NewMoneyFromCents(5000, "USD"), "order insert failed")

	assert.Equal(t, models.IncidentStatusNeedsManualReview, incident.Status)
	assert.Empty(t, f.gateway.RefundCalls)
	// Ops are alerted regardless.
	assert.Equal(t, 1, emailsTo(f.notifier, "ops@example.com"))
}

func TestHandleCriticalFailure_RefundFailureLeavesManualReview(t *testing.T) {
	f := newRecoveryFixture(true)
	f.gateway.RefundErr = errors.New("gateway 500")

	incident := f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "buyer@example.com",
		models.NewMoneyFromCents(5000, "USD"), "order insert failed")

	assert.Equal(t, models.IncidentStatusNeedsManualReview, incident.Status)
	assert.Empty(t, incident.RefundID)
	assert.Equal(t, 0, emailsTo(f.notifier, "buyer@example.com"))
	assert.Equal(t, 1, emailsTo(f.notifier, "ops@example.com"))
}

func TestHandleCriticalFailure_StoreDownFallsBackToEvents(t *testing.T) {
	f := newRecoveryFixture(true)
	f.incidents.CreateErr = errors.New("store unreachable")

	incident := f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "buyer@example.com",
		models.NewMoneyFromCents(5000, "USD"), "order insert failed")

	assert.Empty(t, f.incidents.Incidents)
	// Incident pushed through the event fallback instead.
	require.Len(t, f.publisher.Events, 1)
	assert.Equal(t, events.EventTypePaymentCritical, f.publisher.Events[0].Type)
	assert.Equal(t, "tx_1", f.publisher.Events[0].EntityID)

	// No refund when the incident could not be durably recorded.
	assert.Empty(t, f.gateway.RefundCalls)
	assert.Equal(t, models.IncidentStatusNeedsManualReview, incident.Status)
	assert.Equal(t, 1, emailsTo(f.notifier, "ops@example.com"))
}

func TestHandleCriticalFailure_NeverPanicsWhenEverythingFails(t *testing.T) {
	f := newRecoveryFixture(true)
	f.incidents.CreateErr = errors.New("store unreachable")
	f.notifier.Err = errors.New("smtp down")

	// The publisher mock always succeeds, so this exercises the fallback
	// channel with dead email.
	incident := f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "buyer@example.com",
		models.NewMoneyFromCents(5000, "USD"), "order insert failed")

	require.NotNil(t, incident)
	assert.Equal(t, "tx_1", incident.TransactionID)
}

func TestResolveIncident(t *testing.T) {
	f := newRecoveryFixture(false)
	f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "", models.NewMoneyFromCents(5000, "USD"), "boom")

	incidentID := f.incidents.Incidents[0].ID
	resolved, err := f.svc.ResolveIncident(context.Background(), incidentID, "manual_refund", "refunded via dashboard", "admin_7")
	require.NoError(t, err)

	assert.Equal(t, models.IncidentStatusResolved, resolved.Status)
	assert.Equal(t, "manual_refund", resolved.ResolutionMethod)
	assert.Equal(t, "admin_7", resolved.ResolvedBy)
	assert.NotNil(t, resolved.ResolvedAt)
	// Resolution never touches the gateway.
	assert.Empty(t, f.gateway.RefundCalls)
}

func TestListIncidents_FiltersByStatus(t *testing.T) {
	f := newRecoveryFixture(false)
	f.svc.HandleCriticalFailure(context.Background(),
		"tx_1", "buyer_1", "", models.NewMoneyFromCents(1000, "USD"), "a")
	f.svc.HandleCriticalFailure(context.Background(),
		"tx_2", "buyer_2", "", models.NewMoneyFromCents(2000, "USD"), "b")

	_, err := f.svc.ResolveIncident(context.Background(), f.incidents.Incidents[0].ID, "manual", "", "admin_1")
	require.NoError(t, err)

	open, err := f.svc.ListIncidents(context.Background(), models.IncidentStatusNeedsManualReview)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "tx_2", open[0].TransactionID)
}
