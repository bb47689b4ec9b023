// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChargesTotal counts charge attempts by outcome:
	// approved, declined, unavailable, unknown_outcome.
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_charges_total",
		Help: "Charge attempts by outcome",
	}, []string{"outcome"})

	// CriticalIncidentsTotal counts charged-but-not-recorded incidents.
	CriticalIncidentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_critical_incidents_total",
		Help: "Critical payment incidents recorded",
	})

	// PayoutsTotal counts payout attempts by terminal status.
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_payouts_total",
		Help: "Seller payouts by status",
	}, []string{"status"})

	// WebhookEventsTotal counts webhook deliveries by type and result:
	// applied, replay, rejected, unknown_type.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhook_events_total",
		Help: "Gateway webhook events by type and result",
	}, []string{"type", "result"})

	// OrdersCreatedTotal counts orders created by entry flow.
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_orders_created_total",
		Help: "Orders created by checkout flow",
	}, []string{"flow"})
)
