// Package events publishes marketplace lifecycle events to Kafka for
// downstream consumers (search indexing, analytics, seller dashboards).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// EventType identifies a marketplace event.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypePaymentCritical    EventType = "payment.critical_failure"
	EventTypePayoutCompleted    EventType = "payout.completed"
	EventTypePayoutFailed       EventType = "payout.failed"
)

// Event is the envelope written to the events topic.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	EntityID  string          `json:"entity_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher emits marketplace events.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	PublishPaymentCritical(ctx context.Context, incident *models.CriticalPaymentError) error
	PublishPayoutCompleted(ctx context.Context, payout *models.SellerPayout) error
	PublishPayoutFailed(ctx context.Context, payout *models.SellerPayout) error
	Close() error
}

// Ensure KafkaPublisher implements Publisher
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes events to the marketplace events topic, keyed by
// entity id so per-entity ordering is preserved.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.SugaredLogger
}

// NewKafkaPublisher creates a Kafka-backed publisher.
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logging.NewLogger("event-publisher"),
	}
}

// PublishOrderCreated emits order.created.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return p.publish(ctx, EventTypeOrderCreated, order.ID, order)
}

// PublishOrderStatusChanged emits order.status_changed.
func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	payload := struct {
		Order          *models.Order      `json:"order"`
		PreviousStatus models.OrderStatus `json:"previous_status"`
		NewStatus      models.OrderStatus `json:"new_status"`
	}{order, previous, order.Status}
	return p.publish(ctx, EventTypeOrderStatusChanged, order.ID, payload)
}

// PublishPaymentCritical emits payment.critical_failure. Doubles as the
// recovery service's secondary alert channel.
func (p *KafkaPublisher) PublishPaymentCritical(ctx context.Context, incident *models.CriticalPaymentError) error {
	return p.publish(ctx, EventTypePaymentCritical, incident.TransactionID, incident)
}

// PublishPayoutCompleted emits payout.completed.
func (p *KafkaPublisher) PublishPayoutCompleted(ctx context.Context, payout *models.SellerPayout) error {
	return p.publish(ctx, EventTypePayoutCompleted, payout.ID, payout)
}

// PublishPayoutFailed emits payout.failed.
func (p *KafkaPublisher) PublishPayoutFailed(ctx context.Context, payout *models.SellerPayout) error {
	return p.publish(ctx, EventTypePayoutFailed, payout.ID, payout)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType EventType, entityID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		Data:      data,
		Timestamp: time.Now(),
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(entityID),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorw("Failed to publish event",
			"event_id", event.ID,
			"event_type", eventType,
			"entity_id", entityID,
			"error", err.Error(),
		)
		return err
	}

	p.logger.Debugw("Event published",
		"event_id", event.ID,
		"event_type", eventType,
		"entity_id", entityID,
	)
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MockPublisher records events for tests.
type MockPublisher struct {
	Events []Event
}

func (m *MockPublisher) record(eventType EventType, entityID string) error {
	m.Events = append(m.Events, Event{Type: eventType, EntityID: entityID})
	return nil
}

func (m *MockPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	return m.record(EventTypeOrderCreated, order.ID)
}

func (m *MockPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	return m.record(EventTypeOrderStatusChanged, order.ID)
}

func (m *MockPublisher) PublishPaymentCritical(ctx context.Context, incident *models.CriticalPaymentError) error {
	return m.record(EventTypePaymentCritical, incident.TransactionID)
}

func (m *MockPublisher) PublishPayoutCompleted(ctx context.Context, payout *models.SellerPayout) error {
	return m.record(EventTypePayoutCompleted, payout.ID)
}

func (m *MockPublisher) PublishPayoutFailed(ctx context.Context, payout *models.SellerPayout) error {
	return m.record(EventTypePayoutFailed, payout.ID)
}

func (m *MockPublisher) Close() error { return nil }
