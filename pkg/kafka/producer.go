package kafka

import (
	"context"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"

	"github.com/segmentio/kafka-go"
)

// EventMessage pairs a topic and partition key with an already-encoded
// event payload.
type EventMessage struct {
	Topic string
	Key   string
	Event []byte
}

type Producer struct {
	Writer *kafka.Writer
}

type ProducerConfig struct {
	Brokers []string
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, event events.EventDLQ) error
}

func NewProducer(conf ProducerConfig) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(conf.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  false,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}

	return &Producer{
		Writer: writer,
	}
}

func (p *Producer) PublishEvent(ctx context.Context, evtMessage EventMessage) error {
	msg := kafka.Message{
		Topic: evtMessage.Topic,
		Key:   []byte(evtMessage.Key),
		Value: evtMessage.Event,
		Time:  time.Now(),
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return svcerror.New(
			svcerror.ErrPublishError,
			svcerror.WithOp("Producer.PublishEvent"),
			svcerror.WithMsg("failed to publish event"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	return nil
}

func (p *Producer) PublishMultipleEvents(ctx context.Context, events []EventMessage) error {
	messages := make([]kafka.Message, len(events))

	for i, event := range events {
		messages[i] = kafka.Message{
			Topic: event.Topic,
			Key:   []byte(event.Key),
			Value: event.Event,
			Time:  time.Now(),
		}
	}

	if err := p.Writer.WriteMessages(ctx, messages...); err != nil {
		return svcerror.New(
			svcerror.ErrPublishError,
			svcerror.WithOp("Producer.PublishMultipleEvents"),
			svcerror.WithMsg("failed to publish events"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
