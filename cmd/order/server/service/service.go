package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/models"

	"github.com/google/uuid"
)

// Store is the slice of the durable store the order service owns. Updates
// are field-scoped and version-guarded: the payment projection and the
// shipping address never overwrite each other.
type Store interface {
	SaveOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderId string) (models.Order, error)
	UpdateOrderShipping(ctx context.Context, orderId, shippingAddress string, version int64) error
	UpdateOrderStatus(ctx context.Context, orderId string, status models.OrderStatus, version int64) error
	UpdateOrderPayment(ctx context.Context, orderId string, paymentStatus models.PaymentStatus, orderStatus models.OrderStatus, paymentId string, version int64) error
}

// EventSink records events in the transactional outbox for later delivery.
type EventSink interface {
	SaveEvent(ctx context.Context, evt events.DomainEvent) error
}

type Service struct {
	Store      Store
	Sink       EventSink
	Dispatcher *events.Dispatcher
}

func NewService(store Store, sink EventSink) *Service {
	s := &Service{
		Store:      store,
		Sink:       sink,
		Dispatcher: events.NewDispatcher(),
	}

	events.Register(s.Dispatcher, events.EvtTypePaymentInitiated, s.OnPaymentEvent)
	events.Register(s.Dispatcher, events.EvtTypePaymentCompleted, s.OnPaymentEvent)
	events.Register(s.Dispatcher, events.EvtTypePaymentFailed, s.OnPaymentEvent)
	events.Register(s.Dispatcher, events.EvtTypePaymentRefunded, s.OnPaymentEvent)
	events.Register(s.Dispatcher, events.EvtTypePaymentCancelled, s.OnPaymentEvent)

	return s
}

func (s *Service) HandleMessage(ctx context.Context, message kafka.KafkaMessage) error {
	return s.Dispatcher.Dispatch(ctx, message.Value)
}

// Create persists a new PENDING order, then records the CREATED event in the
// outbox. The event only becomes observable once the order row is durable.
func (s *Service) Create(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	items := make([]models.OrderItem, 0, len(req.Items))
	var total int64
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return models.Order{}, svcerror.New(
				svcerror.ErrInvalidAmount,
				svcerror.WithOp("Order.Create"),
				svcerror.WithMsg(fmt.Sprintf("item %s has non-positive quantity", it.ItemId)),
				svcerror.WithTime(time.Now().UTC()),
			)
		}
		if it.UnitPriceCents < 0 {
			return models.Order{}, svcerror.New(
				svcerror.ErrInvalidAmount,
				svcerror.WithOp("Order.Create"),
				svcerror.WithMsg(fmt.Sprintf("item %s has negative unit price", it.ItemId)),
				svcerror.WithTime(time.Now().UTC()),
			)
		}
		subtotal := it.Quantity * it.UnitPriceCents
		items = append(items, models.OrderItem{
			ItemId:         it.ItemId,
			ItemName:       it.ItemName,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		total += subtotal
	}

	now := time.Now().UTC()
	order := models.Order{
		OrderId:          uuid.NewString(),
		CustomerId:       req.CustomerId,
		Items:            items,
		TotalAmountCents: total,
		OrderStatus:      models.ORDER_STATUS_PENDING,
		PaymentStatus:    models.PAYMENT_STATUS_PENDING,
		ShippingAddress:  req.ShippingAddress,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.Store.SaveOrder(ctx, order); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Create")
	}

	evt := s.orderEvent(order, events.EvtTypeOrderCreated)
	evt.Items = order.Items
	if err := s.Sink.SaveEvent(ctx, evt); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Create")
	}

	log.Printf("[ORDER] Created order %s for customer %s, total %d", order.OrderId, order.CustomerId, total)
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderId string) (models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderId)
	if err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Get")
	}
	return order, nil
}

// Update mutates the order's mutable fields only (shipping address).
func (s *Service) Update(ctx context.Context, orderId string, req models.OrderUpdateRequest) (models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderId)
	if err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Update")
	}

	if err := s.Store.UpdateOrderShipping(ctx, orderId, req.ShippingAddress, order.Version); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Update")
	}
	order.ShippingAddress = req.ShippingAddress
	order.Version++

	if err := s.Sink.SaveEvent(ctx, s.orderEvent(order, events.EvtTypeOrderUpdated)); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Update")
	}

	return order, nil
}

// Cancel moves a non-terminal order to CANCELLED. A second cancel is an
// explicit conflict, not a silent success.
func (s *Service) Cancel(ctx context.Context, orderId string) (models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderId)
	if err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Cancel")
	}

	if order.OrderStatus == models.ORDER_STATUS_CANCELLED {
		return models.Order{}, svcerror.New(
			svcerror.ErrConflict,
			svcerror.WithOp("Order.Cancel"),
			svcerror.WithMsg(fmt.Sprintf("order %s already cancelled", orderId)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	if order.OrderStatus == models.ORDER_STATUS_REFUNDED {
		return models.Order{}, svcerror.New(
			svcerror.ErrInvalidState,
			svcerror.WithOp("Order.Cancel"),
			svcerror.WithMsg(fmt.Sprintf("order %s already refunded", orderId)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	if err := s.Store.UpdateOrderStatus(ctx, orderId, models.ORDER_STATUS_CANCELLED, order.Version); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Cancel")
	}
	order.OrderStatus = models.ORDER_STATUS_CANCELLED
	order.Version++

	if err := s.Sink.SaveEvent(ctx, s.orderEvent(order, events.EvtTypeOrderCancelled)); err != nil {
		return models.Order{}, svcerror.AddOp(err, "Order.Cancel")
	}

	log.Printf("[ORDER] Cancelled order %s", orderId)
	return order, nil
}

// OnPaymentEvent projects a payment outcome onto the order.
func (s *Service) OnPaymentEvent(ctx context.Context, evt events.PaymentEvent) error {
	if evt.OrderId == "" {
		log.Printf("[ORDER] Payment event %s for payment %s carries no order id, skipping", evt.EventType, evt.PaymentId)
		return nil
	}
	return s.ApplyPaymentOutcome(ctx, evt.OrderId, evt.PaymentStatus, evt.PaymentId)
}

// ApplyPaymentOutcome updates the order's payment-status projection and maps
// it onto the order status along the allowed edges. The projection is always
// persisted, even when no mapping rule applies, so paymentStatus stays
// accurate while a terminal orderStatus stays put. An absent order means
// cross-service visibility lag; the event is dropped, not retried.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, orderId string, paymentStatus models.PaymentStatus, paymentId string) error {
	order, err := s.Store.GetOrder(ctx, orderId)
	if err != nil {
		if errors.Is(err, svcerror.ErrNotFound) {
			log.Printf("[ORDER] Order %s not found for payment %s, dropping event", orderId, paymentId)
			return nil
		}
		return svcerror.AddOp(err, "Order.ApplyPaymentOutcome")
	}

	orderStatus := mapOrderStatus(order.OrderStatus, paymentStatus)

	if order.PaymentStatus == paymentStatus && order.OrderStatus == orderStatus && order.PaymentId == paymentId {
		return nil
	}

	if err := s.Store.UpdateOrderPayment(ctx, orderId, paymentStatus, orderStatus, paymentId, order.Version); err != nil {
		return svcerror.AddOp(err, "Order.ApplyPaymentOutcome")
	}

	log.Printf("[ORDER] Order %s payment status %s, order status %s", orderId, paymentStatus, orderStatus)
	return nil
}

// mapOrderStatus applies the payment outcome along the allowed edges.
// Anything else, including a CANCELLED payment or an already-terminal order,
// leaves the order status untouched.
func mapOrderStatus(current models.OrderStatus, paymentStatus models.PaymentStatus) models.OrderStatus {
	if current.Terminal() {
		return current
	}

	switch paymentStatus {
	case models.PAYMENT_STATUS_COMPLETED:
		if current == models.ORDER_STATUS_PENDING {
			return models.ORDER_STATUS_CONFIRMED
		}
	case models.PAYMENT_STATUS_FAILED:
		if current == models.ORDER_STATUS_PENDING {
			return models.ORDER_STATUS_PAYMENT_FAILED
		}
	case models.PAYMENT_STATUS_REFUNDED:
		if current == models.ORDER_STATUS_CONFIRMED {
			return models.ORDER_STATUS_REFUNDED
		}
	}

	return current
}

func (s *Service) orderEvent(order models.Order, evtType events.EventType) events.OrderEvent {
	return events.OrderEvent{
		OrderId:          order.OrderId,
		EventType:        evtType,
		OrderStatus:      order.OrderStatus,
		CustomerId:       order.CustomerId,
		TotalAmountCents: order.TotalAmountCents,
		PaymentId:        order.PaymentId,
		Timestamp:        time.Now().UTC(),
	}
}
