package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/metrics"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// OrderWebhookStore is the slice of order persistence the webhook processor
// needs. Both updates are conditional on the current payment status, keyed
// by gateway transaction id, so a replayed event cannot apply twice.
type OrderWebhookStore interface {
	// CompletePaymentByTransactionID flips the order for txnID to
	// payment_status=completed and status=processing. Returns the order
	// with items and applied=true only when the flip changed a row.
	CompletePaymentByTransactionID(ctx context.Context, txnID string) (*models.Order, bool, error)
	// FailPaymentByTransactionID flips the order to payment_failed.
	FailPaymentByTransactionID(ctx context.Context, txnID string) (bool, error)
}

// PayoutWebhookStore is the slice of payout persistence the webhook
// processor needs, keyed by the gateway's payout reference.
type PayoutWebhookStore interface {
	CompleteByGatewayRef(ctx context.Context, ref string) (*models.SellerPayout, bool, error)
	FailByGatewayRef(ctx context.Context, ref, reason string) (*models.SellerPayout, bool, error)
}

// ListingDecrementer applies a guarded quantity decrement.
type ListingDecrementer interface {
	DecrementQuantity(ctx context.Context, listingID string, qty int) error
}

// WebhookProcessor applies gateway webhook events to local state. Side
// effects are keyed off the gateway transaction id with conditional writes,
// so processing the same event twice is a no-op.
type WebhookProcessor struct {
	orders    OrderWebhookStore
	payouts   PayoutWebhookStore
	listings  ListingDecrementer
	publisher events.Publisher
	logger    *zap.SugaredLogger
}

// NewWebhookProcessor creates a webhook processor.
func NewWebhookProcessor(orders OrderWebhookStore, payouts PayoutWebhookStore, listings ListingDecrementer, publisher events.Publisher) *WebhookProcessor {
	return &WebhookProcessor{
		orders:    orders,
		payouts:   payouts,
		listings:  listings,
		publisher: publisher,
		logger:    logging.NewLogger("webhook-processor"),
	}
}

// HandleEvent dispatches one verified webhook event. Unknown types are
// acknowledged and logged; the gateway should not retry them forever.
func (p *WebhookProcessor) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventPaymentCompleted:
		return p.handlePaymentCompleted(ctx, event)
	case EventPaymentFailed:
		return p.handlePaymentFailed(ctx, event)
	case EventPayoutCompleted:
		return p.handlePayoutCompleted(ctx, event)
	case EventPayoutFailed:
		return p.handlePayoutFailed(ctx, event)
	default:
		p.logger.Warnw("Ignoring unknown webhook event type",
			"event_id", event.ID,
			"type", event.Type,
		)
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "unknown_type").Inc()
		return nil
	}
}

func (p *WebhookProcessor) handlePaymentCompleted(ctx context.Context, event *Event) error {
	order, applied, err := p.orders.CompletePaymentByTransactionID(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	if !applied {
		// Replay, or a charge-first order that was already completed at
		// creation. Either way the quantities were already taken.
		p.logger.Infow("Payment completion already applied",
			"event_id", event.ID,
			"transaction_id", event.TransactionID,
		)
		metrics.WebhookEventsTotal.WithLabelValues(event.Type, "replay").Inc()
		return nil
	}

	for _, item := range order.Items {
		if err := p.listings.DecrementQuantity(ctx, item.ListingID, item.Quantity); err != nil {
			// Order is correctly recorded and paid; quantity drift is
			// repaired by the next consistency pass.
			p.logger.Errorw("Quantity decrement failed after payment completion",
				"order_id", order.ID,
				"listing_id", item.ListingID,
				"error", err.Error(),
			)
		}
	}

	p.logger.Infow("Payment completed via webhook",
		"order_id", order.ID,
		"transaction_id", event.TransactionID,
	)
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, "applied").Inc()
	return nil
}

func (p *WebhookProcessor) handlePaymentFailed(ctx context.Context, event *Event) error {
	applied, err := p.orders.FailPaymentByTransactionID(ctx, event.TransactionID)
	if err != nil {
		return err
	}
	result := "applied"
	if !applied {
		result = "replay"
	}
	p.logger.Infow("Payment failure webhook processed",
		"transaction_id", event.TransactionID,
		"applied", applied,
	)
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, result).Inc()
	return nil
}

func (p *WebhookProcessor) handlePayoutCompleted(ctx context.Context, event *Event) error {
	payout, applied, err := p.payouts.CompleteByGatewayRef(ctx, event.PayoutRef)
	if err != nil {
		return err
	}
	result := "applied"
	if !applied {
		result = "replay"
	} else {
		metrics.PayoutsTotal.WithLabelValues(string(models.PayoutStatusCompleted)).Inc()
		p.logger.Infow("Payout completed",
			"payout_id", payout.ID,
			"seller_id", payout.SellerID,
			"gateway_ref", event.PayoutRef,
		)
		// The conditional flip already filtered replays, so this fires at
		// most once per payout.
		if err := p.publisher.PublishPayoutCompleted(ctx, payout); err != nil {
			p.logger.Errorw("Payout completed event publish failed",
				"payout_id", payout.ID, "error", err.Error())
		}
	}
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, result).Inc()
	return nil
}

func (p *WebhookProcessor) handlePayoutFailed(ctx context.Context, event *Event) error {
	payout, applied, err := p.payouts.FailByGatewayRef(ctx, event.PayoutRef, event.Reason)
	if err != nil {
		return err
	}
	result := "applied"
	if !applied {
		result = "replay"
	} else {
		metrics.PayoutsTotal.WithLabelValues(string(models.PayoutStatusFailed)).Inc()
		p.logger.Errorw("Payout failed",
			"payout_id", payout.ID,
			"seller_id", payout.SellerID,
			"reason", event.Reason,
		)
		if err := p.publisher.PublishPayoutFailed(ctx, payout); err != nil {
			p.logger.Errorw("Payout failed event publish failed",
				"payout_id", payout.ID, "error", err.Error())
		}
	}
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, result).Inc()
	return nil
}
