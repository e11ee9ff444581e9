package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"summershop-saga/pkg/database"
	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/models"
	"summershop-saga/pkg/utils"

	"github.com/google/uuid"
)

// Relay drains the service's outbox table onto its Kafka topic. Events are
// written to the table in the same unit of work that mutates the entity, so
// a consumer can only ever see an event whose originating write is durable.
type Relay struct {
	Producer *kafka.Producer
	Database *database.Database
	Every    time.Duration
	Batch    int
	Topic    string
}

func NewRelay(producer *kafka.Producer, database *database.Database, topic string) *Relay {
	durStr := utils.GetEnv("OUTBOX_INTERVAL", "500ms")
	dur, err := time.ParseDuration(durStr)
	if err != nil {
		dur = 500 * time.Millisecond
	}

	batchStr := utils.GetEnv("OUTBOX_BATCH", "200")
	batch, err := strconv.Atoi(batchStr)
	if err != nil {
		batch = 200
	}

	return &Relay{
		Producer: producer,
		Database: database,
		Every:    dur,
		Batch:    batch,
		Topic:    topic,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.FlushMessages(ctx); err != nil {
				switch {
				case errors.Is(err, svcerror.ErrDatabaseError) || errors.Is(err, svcerror.ErrPublishError):
					if ed := new(svcerror.ErrorDetails); errors.As(err, &ed) {
						log.Printf("[OUTBOX] msg=%s trace=%s cause=%v at=%s",
							ed.Msg, ed.TraceString(), ed.Cause, ed.OccuredAt)
					}
				default:
					return svcerror.AddOp(err, "Outbox.Run")
				}
			}
		}
	}
}

func (r *Relay) FlushMessages(ctx context.Context) error {
	batch, err := r.Database.GetUnpublishedOutbox(ctx, r.Batch, r.Topic)
	if err != nil {
		return svcerror.AddOp(err, "Outbox.FlushMessages")
	}

	if len(batch) == 0 {
		return nil
	}

	if err := r.PublishMessages(ctx, batch); err != nil {
		return svcerror.AddOp(err, "Outbox.FlushMessages")
	}

	ids := make([]string, 0, len(batch))
	for _, outbox := range batch {
		ids = append(ids, outbox.Id)
	}

	if err := r.Database.UpdateOutboxPublished(ctx, ids); err != nil {
		return svcerror.AddOp(err, "Outbox.FlushMessages")
	}
	return nil
}

func (r *Relay) PublishMessages(ctx context.Context, batch []models.Outbox) error {
	msgs := make([]kafka.EventMessage, 0, len(batch))
	for _, outbox := range batch {
		msgs = append(msgs, kafka.EventMessage{
			Topic: r.Topic,
			Key:   outbox.Key,
			Event: outbox.Payload,
		})
	}
	if err := r.Producer.PublishMultipleEvents(ctx, msgs); err != nil {
		return svcerror.New(
			svcerror.ErrPublishError,
			svcerror.WithOp("Outbox.PublishMessages"),
			svcerror.WithMsg("failed to publish outbox batch"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	return nil
}

// SaveEvent records a domain event in the outbox table for later delivery.
// The event's partition key keeps per-entity ordering on the topic.
func (r *Relay) SaveEvent(ctx context.Context, evt events.DomainEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return svcerror.New(
			svcerror.ErrInternalError,
			svcerror.WithOp("Outbox.SaveEvent"),
			svcerror.WithMsg("marshal event"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	outbox := models.Outbox{
		Id:        uuid.NewString(),
		Key:       evt.Key(),
		EventType: string(evt.Type()),
		Topic:     r.Topic,
		Payload:   payload,
	}

	if err := r.Database.SaveOutbox(ctx, outbox); err != nil {
		return svcerror.AddOp(err, "Outbox.SaveEvent")
	}

	return nil
}

func (r *Relay) PublishToDLQ(ctx context.Context, event events.EventDLQ) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return svcerror.New(
			svcerror.ErrInternalError,
			svcerror.WithOp("Outbox.PublishToDLQ"),
			svcerror.WithMsg("failed to marshal dlq event"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	if err := r.Producer.PublishEvent(ctx, kafka.EventMessage{
		Topic: kafka.TopicDeadLetterQueue,
		Key:   event.Key,
		Event: payload,
	}); err != nil {
		return svcerror.New(
			svcerror.ErrPublishError,
			svcerror.WithOp("Outbox.PublishToDLQ"),
			svcerror.WithMsg("failed to publish dlq event"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	return nil
}
