package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	svcerror "summershop-saga/pkg/error"
)

type TypedHandler func(ctx context.Context, raw []byte) error

// Dispatcher routes raw stream messages to handlers registered per event
// type. The registration set is closed at construction time: a message whose
// type has no handler is surfaced as an error instead of being skipped.
type Dispatcher struct {
	Handlers map[EventType]TypedHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{Handlers: make(map[EventType]TypedHandler)}
}

func Register[T DomainEvent](d *Dispatcher, et EventType, handler func(ctx context.Context, evt T) error) {
	d.Handlers[et] = func(ctx context.Context, raw []byte) error {
		var evt T
		if err := json.Unmarshal(raw, &evt); err != nil {
			return svcerror.New(
				svcerror.ErrInternalError,
				svcerror.WithOp("Dispatcher.Dispatch"),
				svcerror.WithMsg(fmt.Sprintf("unmarshal %s event", et)),
				svcerror.WithCause(err),
				svcerror.WithTime(time.Now().UTC()),
			)
		}
		return handler(ctx, evt)
	}
	log.Printf("[DISPATCHER] Registered handler for %s", string(et))
}

type EventEnvelope struct {
	EventType EventType `json:"event_type"`
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var env EventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return svcerror.New(
			svcerror.ErrInternalError,
			svcerror.WithOp("Dispatcher.Dispatch"),
			svcerror.WithMsg("unmarshal event envelope"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	handler, ok := d.Handlers[env.EventType]
	if !ok {
		return svcerror.New(
			svcerror.ErrInvalidState,
			svcerror.WithOp("Dispatcher.Dispatch"),
			svcerror.WithMsg(fmt.Sprintf("no handler registered for event type %q", env.EventType)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	return handler(ctx, raw)
}
