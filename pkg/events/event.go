package events

import (
	"encoding/json"
	"time"

	"summershop-saga/pkg/models"
)

type EventType string

// Order stream. Partitioned by order id.
const (
	EvtTypeOrderCreated   EventType = "CREATED"
	EvtTypeOrderUpdated   EventType = "UPDATED"
	EvtTypeOrderCancelled EventType = "CANCELLED"
)

// Payment stream. Partitioned by payment id.
const (
	EvtTypePaymentInitiated EventType = "INITIATED"
	EvtTypePaymentCompleted EventType = "COMPLETED"
	EvtTypePaymentFailed    EventType = "FAILED"
	EvtTypePaymentRefunded  EventType = "REFUNDED"
	EvtTypePaymentCancelled EventType = "CANCELLED"
)

const (
	ProducerOrderSvc   = "order-service"
	ProducerPaymentSvc = "payment-service"
)

type DomainEvent interface {
	Type() EventType
	Key() string
}

// OrderEvent is the order service's wire contract. Existing fields never
// change meaning; consumers ignore fields they do not know.
type OrderEvent struct {
	OrderId          string             `json:"order_id"`
	EventType        EventType          `json:"event_type"`
	OrderStatus      models.OrderStatus `json:"order_status"`
	CustomerId       string             `json:"customer_id"`
	TotalAmountCents int64              `json:"total_amount_cents"`
	Items            []models.OrderItem `json:"items,omitempty"`
	PaymentId        string             `json:"payment_id,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
}

func (e OrderEvent) Type() EventType { return e.EventType }
func (e OrderEvent) Key() string     { return e.OrderId }

// PaymentEvent is the payment service's wire contract.
type PaymentEvent struct {
	PaymentId     string               `json:"payment_id"`
	EventType     EventType            `json:"event_type"`
	OrderId       string               `json:"order_id"`
	AmountCents   int64                `json:"amount_cents"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentMethod string               `json:"payment_method"`
	FailureReason string               `json:"failure_reason,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

func (e PaymentEvent) Type() EventType { return e.EventType }
func (e PaymentEvent) Key() string     { return e.PaymentId }

// EventDLQ wraps a message that exhausted its retries.
type EventDLQ struct {
	MessageId   string          `json:"message_id"`
	SourceTopic string          `json:"source_topic"`
	Key         string          `json:"key"`
	Service     string          `json:"service"`
	Reason      string          `json:"reason"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}
