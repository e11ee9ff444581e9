package models

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	ORDER_STATUS_PENDING        OrderStatus = "PENDING"
	ORDER_STATUS_CONFIRMED      OrderStatus = "CONFIRMED"
	ORDER_STATUS_PAYMENT_FAILED OrderStatus = "PAYMENT_FAILED"
	ORDER_STATUS_CANCELLED      OrderStatus = "CANCELLED"
	ORDER_STATUS_REFUNDED       OrderStatus = "REFUNDED"
)

// Terminal order statuses never transition again via payment events.
func (s OrderStatus) Terminal() bool {
	return s == ORDER_STATUS_CANCELLED || s == ORDER_STATUS_REFUNDED
}

type PaymentStatus string

const (
	PAYMENT_STATUS_PENDING    PaymentStatus = "PENDING"
	PAYMENT_STATUS_PROCESSING PaymentStatus = "PROCESSING"
	PAYMENT_STATUS_COMPLETED  PaymentStatus = "COMPLETED"
	PAYMENT_STATUS_FAILED     PaymentStatus = "FAILED"
	PAYMENT_STATUS_CANCELLED  PaymentStatus = "CANCELLED"
	PAYMENT_STATUS_REFUNDED   PaymentStatus = "REFUNDED"
)

type OrderItem struct {
	ItemId         string `json:"item_id"`
	ItemName       string `json:"item_name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Order struct {
	OrderId          string        `json:"order_id"`
	CustomerId       string        `json:"customer_id"`
	Items            []OrderItem   `json:"items"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	OrderStatus      OrderStatus   `json:"order_status"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentId        string        `json:"payment_id,omitempty"`
	ShippingAddress  string        `json:"shipping_address"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type Payment struct {
	Id                  string        `json:"id"`
	IdempotencyKey      string        `json:"idempotency_key"`
	OrderId             string        `json:"order_id"`
	AmountCents         int64         `json:"amount_cents"`
	Currency            string        `json:"currency"`
	PaymentMethod       string        `json:"payment_method"`
	Status              PaymentStatus `json:"status"`
	TransactionId       string        `json:"transaction_id,omitempty"`
	FailureReason       string        `json:"failure_reason,omitempty"`
	RefundedAmountCents int64         `json:"refunded_amount_cents,omitempty"`
	Version             int64         `json:"version"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// redis cache roundtrip
func (p Payment) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Payment) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

type Outbox struct {
	Id        string
	Key       string
	EventType string
	Topic     string
	Payload   []byte
}

type OrderRequest struct {
	CustomerId      string             `json:"customer_id" binding:"required"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1"`
	ShippingAddress string             `json:"shipping_address"`
}

type OrderItemRequest struct {
	ItemId         string `json:"item_id" binding:"required"`
	ItemName       string `json:"item_name"`
	Quantity       int64  `json:"quantity" binding:"required"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type OrderUpdateRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
}

type PaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	OrderId        string `json:"order_id" binding:"required"`
	AmountCents    int64  `json:"amount_cents" binding:"required"`
	Currency       string `json:"currency"`
	PaymentMethod  string `json:"payment_method" binding:"required"`
}

type PaymentUpdateRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type RefundRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

type AuthorizationResult struct {
	Approved      bool   `json:"approved"`
	TransactionId string `json:"transaction_id"`
	DeclineReason string `json:"decline_reason"`
}
