package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/models"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]models.Order

	// when > 0, the next UpdateOrderPayment loses the optimistic-lock race:
	// a rival write bumps the version and the call fails with Stale Version
	paymentUpdateConflicts int
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[string]models.Order)}
}

func notFound(id string) error {
	return svcerror.New(
		svcerror.ErrNotFound,
		svcerror.WithMsg(fmt.Sprintf("order %s not found", id)),
	)
}

func staleVersion(id string) error {
	return svcerror.New(
		svcerror.ErrStaleVersion,
		svcerror.WithMsg(fmt.Sprintf("stale version for %s", id)),
	)
}

func (m *memStore) SaveOrder(ctx context.Context, order models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderId] = order
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, orderId string) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderId]
	if !ok {
		return models.Order{}, notFound(orderId)
	}
	return order, nil
}

func (m *memStore) UpdateOrderShipping(ctx context.Context, orderId, shippingAddress string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderId]
	if !ok || order.Version != version {
		return staleVersion(orderId)
	}
	order.ShippingAddress = shippingAddress
	order.Version++
	m.orders[orderId] = order
	return nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderId string, status models.OrderStatus, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderId]
	if !ok || order.Version != version {
		return staleVersion(orderId)
	}
	order.OrderStatus = status
	order.Version++
	m.orders[orderId] = order
	return nil
}

func (m *memStore) UpdateOrderPayment(ctx context.Context, orderId string, paymentStatus models.PaymentStatus, orderStatus models.OrderStatus, paymentId string, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderId]
	if !ok {
		return staleVersion(orderId)
	}
	if m.paymentUpdateConflicts > 0 {
		m.paymentUpdateConflicts--
		order.Version++
		m.orders[orderId] = order
		return staleVersion(orderId)
	}
	if order.Version != version {
		return staleVersion(orderId)
	}
	order.PaymentStatus = paymentStatus
	order.OrderStatus = orderStatus
	order.PaymentId = paymentId
	order.Version++
	m.orders[orderId] = order
	return nil
}

type memSink struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (s *memSink) SaveEvent(ctx context.Context, evt events.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *memSink) countType(et events.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, evt := range s.events {
		if evt.Type() == et {
			n++
		}
	}
	return n
}

func newTestService() (*Service, *memStore, *memSink) {
	store := newMemStore()
	sink := &memSink{}
	return NewService(store, sink), store, sink
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, sink := newTestService()

	order, err := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items: []models.OrderItemRequest{
			{ItemId: "i1", ItemName: "Hat", Quantity: 2, UnitPriceCents: 10},
		},
		ShippingAddress: "1 Main St",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if order.TotalAmountCents != 20 {
		t.Errorf("expected total 20, got %d", order.TotalAmountCents)
	}
	if order.Items[0].SubtotalCents != 20 {
		t.Errorf("expected subtotal 20, got %d", order.Items[0].SubtotalCents)
	}
	if order.OrderStatus != models.ORDER_STATUS_PENDING || order.PaymentStatus != models.PAYMENT_STATUS_PENDING {
		t.Errorf("expected PENDING/PENDING, got %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if n := sink.countType(events.EvtTypeOrderCreated); n != 1 {
		t.Errorf("expected 1 CREATED event, got %d", n)
	}
}

func TestCreateRejectsInvalidItems(t *testing.T) {
	svc, _, _ := newTestService()

	tests := []struct {
		name string
		item models.OrderItemRequest
	}{
		{"zero quantity", models.OrderItemRequest{ItemId: "i1", Quantity: 0, UnitPriceCents: 10}},
		{"negative quantity", models.OrderItemRequest{ItemId: "i1", Quantity: -1, UnitPriceCents: 10}},
		{"negative price", models.OrderItemRequest{ItemId: "i1", Quantity: 1, UnitPriceCents: -5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), models.OrderRequest{
				CustomerId: "c1",
				Items:      []models.OrderItemRequest{tc.item},
			})
			if !errors.Is(err, svcerror.ErrInvalidAmount) {
				t.Errorf("expected InvalidAmount, got %v", err)
			}
		})
	}
}

func TestApplyPaymentOutcomeConfirmsOrder(t *testing.T) {
	svc, store, _ := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 2, UnitPriceCents: 10}},
	})

	err := svc.ApplyPaymentOutcome(context.Background(), order.OrderId, models.PAYMENT_STATUS_COMPLETED, "p1")
	if err != nil {
		t.Fatalf("ApplyPaymentOutcome failed: %v", err)
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.OrderStatus != models.ORDER_STATUS_CONFIRMED {
		t.Errorf("expected CONFIRMED, got %s", got.OrderStatus)
	}
	if got.PaymentStatus != models.PAYMENT_STATUS_COMPLETED {
		t.Errorf("expected payment status COMPLETED, got %s", got.PaymentStatus)
	}
	if got.PaymentId != "p1" {
		t.Errorf("expected payment id p1, got %s", got.PaymentId)
	}
}

func TestApplyPaymentOutcomeIdempotent(t *testing.T) {
	svc, store, _ := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 100}},
	})

	for i := 0; i < 2; i++ {
		if err := svc.ApplyPaymentOutcome(context.Background(), order.OrderId, models.PAYMENT_STATUS_COMPLETED, "p1"); err != nil {
			t.Fatalf("apply %d failed: %v", i+1, err)
		}
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.OrderStatus != models.ORDER_STATUS_CONFIRMED || got.PaymentStatus != models.PAYMENT_STATUS_COMPLETED {
		t.Errorf("expected CONFIRMED/COMPLETED, got %s/%s", got.OrderStatus, got.PaymentStatus)
	}
	// the second application is a no-op, it must not bump the version
	if got.Version != order.Version+1 {
		t.Errorf("expected version %d, got %d", order.Version+1, got.Version)
	}
}

func TestOutcomeMappingEdges(t *testing.T) {
	tests := []struct {
		name          string
		current       models.OrderStatus
		paymentStatus models.PaymentStatus
		want          models.OrderStatus
	}{
		{"completed confirms pending", models.ORDER_STATUS_PENDING, models.PAYMENT_STATUS_COMPLETED, models.ORDER_STATUS_CONFIRMED},
		{"failed marks pending", models.ORDER_STATUS_PENDING, models.PAYMENT_STATUS_FAILED, models.ORDER_STATUS_PAYMENT_FAILED},
		{"refund moves confirmed", models.ORDER_STATUS_CONFIRMED, models.PAYMENT_STATUS_REFUNDED, models.ORDER_STATUS_REFUNDED},
		{"cancelled payment leaves status", models.ORDER_STATUS_PENDING, models.PAYMENT_STATUS_CANCELLED, models.ORDER_STATUS_PENDING},
		{"completed after cancel loses", models.ORDER_STATUS_CANCELLED, models.PAYMENT_STATUS_COMPLETED, models.ORDER_STATUS_CANCELLED},
		{"refund after cancel loses", models.ORDER_STATUS_CANCELLED, models.PAYMENT_STATUS_REFUNDED, models.ORDER_STATUS_CANCELLED},
		{"completed on confirmed stays", models.ORDER_STATUS_CONFIRMED, models.PAYMENT_STATUS_COMPLETED, models.ORDER_STATUS_CONFIRMED},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapOrderStatus(tc.current, tc.paymentStatus); got != tc.want {
				t.Errorf("mapOrderStatus(%s, %s) = %s, want %s", tc.current, tc.paymentStatus, got, tc.want)
			}
		})
	}
}

func TestApplyPaymentOutcomeConflictRetries(t *testing.T) {
	svc, store, _ := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 100}},
	})

	// a shipping update lands inside the read-write window
	store.paymentUpdateConflicts = 1

	err := svc.ApplyPaymentOutcome(context.Background(), order.OrderId, models.PAYMENT_STATUS_COMPLETED, "p1")
	if err == nil {
		t.Fatal("expected a stale-version error on the first attempt")
	}
	if !errors.Is(err, svcerror.ErrStaleVersion) {
		t.Fatalf("expected StaleVersion, got %v", err)
	}
	if svcerror.IsTerminal(err) {
		t.Fatal("a lost optimistic-lock race must stay retryable, not drop the event")
	}

	// the consumer redelivers; the fresh read sees the new version
	if err := svc.ApplyPaymentOutcome(context.Background(), order.OrderId, models.PAYMENT_STATUS_COMPLETED, "p1"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.OrderStatus != models.ORDER_STATUS_CONFIRMED {
		t.Errorf("expected CONFIRMED after retry, got %s", got.OrderStatus)
	}
	if got.PaymentStatus != models.PAYMENT_STATUS_COMPLETED {
		t.Errorf("expected payment status COMPLETED, got %s", got.PaymentStatus)
	}
}

func TestCancelledOrderKeepsProjectionAccurate(t *testing.T) {
	svc, store, _ := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 50}},
	})
	if _, err := svc.Cancel(context.Background(), order.OrderId); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	// a late COMPLETED must update the projection but never un-cancel
	if err := svc.ApplyPaymentOutcome(context.Background(), order.OrderId, models.PAYMENT_STATUS_COMPLETED, "p1"); err != nil {
		t.Fatalf("ApplyPaymentOutcome failed: %v", err)
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.OrderStatus != models.ORDER_STATUS_CANCELLED {
		t.Errorf("expected CANCELLED, got %s", got.OrderStatus)
	}
	if got.PaymentStatus != models.PAYMENT_STATUS_COMPLETED {
		t.Errorf("expected payment status COMPLETED, got %s", got.PaymentStatus)
	}
}

func TestCancelTwiceConflicts(t *testing.T) {
	svc, _, sink := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 50}},
	})

	if _, err := svc.Cancel(context.Background(), order.OrderId); err != nil {
		t.Fatalf("first Cancel failed: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), order.OrderId); !errors.Is(err, svcerror.ErrConflict) {
		t.Errorf("expected Conflict on double cancel, got %v", err)
	}
	if n := sink.countType(events.EvtTypeOrderCancelled); n != 1 {
		t.Errorf("expected 1 CANCELLED event, got %d", n)
	}
}

func TestCancelUnknownOrderNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Cancel(context.Background(), "missing"); !errors.Is(err, svcerror.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestApplyPaymentOutcomeUnknownOrderDropped(t *testing.T) {
	svc, _, _ := newTestService()

	// visibility lag across services: drop, do not fail the partition
	if err := svc.ApplyPaymentOutcome(context.Background(), "missing", models.PAYMENT_STATUS_COMPLETED, "p1"); err != nil {
		t.Errorf("expected nil for unknown order, got %v", err)
	}
}

func TestUpdateChangesShippingOnly(t *testing.T) {
	svc, store, sink := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId:      "c1",
		Items:           []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 50}},
		ShippingAddress: "1 Main St",
	})

	if _, err := svc.Update(context.Background(), order.OrderId, models.OrderUpdateRequest{ShippingAddress: "2 Side St"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.ShippingAddress != "2 Side St" {
		t.Errorf("expected updated address, got %s", got.ShippingAddress)
	}
	if got.OrderStatus != models.ORDER_STATUS_PENDING {
		t.Errorf("status must not change on update, got %s", got.OrderStatus)
	}
	if n := sink.countType(events.EvtTypeOrderUpdated); n != 1 {
		t.Errorf("expected 1 UPDATED event, got %d", n)
	}
}

func TestHandleMessageDispatchesPaymentEvent(t *testing.T) {
	svc, store, _ := newTestService()

	order, _ := svc.Create(context.Background(), models.OrderRequest{
		CustomerId: "c1",
		Items:      []models.OrderItemRequest{{ItemId: "i1", Quantity: 1, UnitPriceCents: 50}},
	})

	raw, _ := json.Marshal(events.PaymentEvent{
		PaymentId:     "p1",
		EventType:     events.EvtTypePaymentFailed,
		OrderId:       order.OrderId,
		AmountCents:   50,
		PaymentStatus: models.PAYMENT_STATUS_FAILED,
		PaymentMethod: "CREDIT_CARD",
		FailureReason: "Card declined",
		Timestamp:     time.Now().UTC(),
	})

	if err := svc.HandleMessage(context.Background(), kafka.KafkaMessage{Value: raw}); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}

	got, _ := store.GetOrder(context.Background(), order.OrderId)
	if got.OrderStatus != models.ORDER_STATUS_PAYMENT_FAILED {
		t.Errorf("expected PAYMENT_FAILED, got %s", got.OrderStatus)
	}
}
