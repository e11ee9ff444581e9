package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/models"
)

func TestDispatchRoutesByEventType(t *testing.T) {
	d := NewDispatcher()

	var got PaymentEvent
	Register(d, EvtTypePaymentCompleted, func(ctx context.Context, evt PaymentEvent) error {
		got = evt
		return nil
	})

	raw, _ := json.Marshal(PaymentEvent{
		PaymentId:     "p1",
		EventType:     EvtTypePaymentCompleted,
		OrderId:       "o1",
		AmountCents:   2500,
		PaymentStatus: models.PAYMENT_STATUS_COMPLETED,
		Timestamp:     time.Now().UTC(),
	})

	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got.PaymentId != "p1" || got.OrderId != "o1" || got.AmountCents != 2500 {
		t.Errorf("handler received %+v", got)
	}
}

func TestDispatchUnknownTypeErrors(t *testing.T) {
	d := NewDispatcher()
	Register(d, EvtTypePaymentCompleted, func(ctx context.Context, evt PaymentEvent) error {
		return nil
	})

	raw := []byte(`{"event_type":"SOMETHING_ELSE"}`)
	err := d.Dispatch(context.Background(), raw)
	if !errors.Is(err, svcerror.ErrInvalidState) {
		t.Errorf("expected InvalidState for unregistered type, got %v", err)
	}
}

func TestDispatchMalformedPayload(t *testing.T) {
	d := NewDispatcher()

	if err := d.Dispatch(context.Background(), []byte(`not json`)); err == nil {
		t.Error("expected an error for malformed payload")
	}
}

func TestDispatchHandlerErrorPropagates(t *testing.T) {
	d := NewDispatcher()
	want := errors.New("boom")
	Register(d, EvtTypeOrderCancelled, func(ctx context.Context, evt OrderEvent) error {
		return want
	})

	raw, _ := json.Marshal(OrderEvent{OrderId: "o1", EventType: EvtTypeOrderCancelled})
	if err := d.Dispatch(context.Background(), raw); !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestPartitionKeys(t *testing.T) {
	oe := OrderEvent{OrderId: "o1"}
	if oe.Key() != "o1" {
		t.Errorf("order events must key by order id, got %s", oe.Key())
	}
	pe := PaymentEvent{PaymentId: "p1", OrderId: "o1"}
	if pe.Key() != "p1" {
		t.Errorf("payment events must key by payment id, got %s", pe.Key())
	}
}
