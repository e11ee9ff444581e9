package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader  *kafka.Reader
	relay   DLQPublisher
	service string
}

type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	GroupId string
	Service string
}

func NewConsumer(conf ConsumerConfig, relay DLQPublisher) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        conf.Brokers,
		GroupTopics:    conf.Topics,
		GroupID:        conf.GroupId,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024, //	10MB
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
	})

	return &Consumer{
		reader:  reader,
		relay:   relay,
		service: conf.Service,
	}
}

type KafkaMessage kafka.Message
type MessageHandler func(ctx context.Context, message KafkaMessage) error

// ConsumeMessages fans fetched messages out to one worker per partition.
// Within a partition messages are handled sequentially and the offset is
// committed only after the handler succeeds; a slow handler stalls only its
// own partition.
func (c *Consumer) ConsumeMessages(ctx context.Context, handler MessageHandler) error {
	partChannels := make(map[int]chan kafka.Message)
	var mu sync.Mutex
	var wg sync.WaitGroup

	defer func() {
		mu.Lock()
		for _, ch := range partChannels {
			close(ch)
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("Failed to fetch message: %v", err)
				continue
			}

			partition := msg.Partition

			mu.Lock()
			ch, ok := partChannels[partition]
			if !ok {
				ch = make(chan kafka.Message, 1024)
				partChannels[partition] = ch
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.RunWorker(ctx, handler, ch)
				}()
			}
			mu.Unlock()

			select {
			case ch <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Consumer) RunWorker(ctx context.Context, handler MessageHandler, messageChannel <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChannel:
			if !ok {
				return
			}

			if err := handler(ctx, KafkaMessage(msg)); err != nil {
				c.handleMessageError(ctx, err, msg)
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Printf("Failed to commit message: %v", err)
			}
		}
	}
}

// handleMessageError decides the fate of a failed message. Terminal business
// errors (not found, conflict, invalid state/amount) are logged and dropped:
// redelivery cannot change the outcome. Anything else already exhausted its
// retries and is routed to the dead-letter topic. The offset is committed in
// both cases so the partition keeps moving.
func (c *Consumer) handleMessageError(ctx context.Context, err error, msg kafka.Message) {
	if svcerror.IsTerminal(err) {
		log.Printf("Dropping message on %s key=%s: %+v", msg.Topic, string(msg.Key), err)
	} else {
		dlqError := events.EventDLQ{
			MessageId:   uuid.NewString(),
			SourceTopic: msg.Topic,
			Key:         string(msg.Key),
			Service:     c.service,
			Reason:      err.Error(),
			OccurredAt:  time.Now().UTC(),
			Payload:     msg.Value,
		}
		if err := c.relay.PublishToDLQ(ctx, dlqError); err != nil {
			log.Printf("Failed to publish to DLQ: %v", err)
			return
		}
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Printf("Failed to commit message: %v", err)
	}
}

// ConsumeWithRetry wraps the handler with a bounded linear backoff. Terminal
// business errors short-circuit, they are never retried.
func (c *Consumer) ConsumeWithRetry(ctx context.Context, handler MessageHandler, maxAttempts int) error {
	return c.ConsumeMessages(ctx, func(ctx context.Context, message KafkaMessage) error {
		var lastErr error

		for i := 1; i <= maxAttempts; i++ {
			err := handler(ctx, message)
			if err == nil {
				return nil
			}

			if svcerror.IsTerminal(err) {
				return err
			}

			lastErr = err
			log.Printf("Attempt %d/%d failed: %v", i, maxAttempts, err)

			if i < maxAttempts {
				backoff := time.Duration(i) * time.Second
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		log.Printf("Failed to process message after %d attempts: %v", maxAttempts, lastErr)
		return lastErr
	})
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
