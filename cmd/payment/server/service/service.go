package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"summershop-saga/cmd/payment/server/authorizer"
	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/models"
	"summershop-saga/pkg/repository"
	"summershop-saga/pkg/scheduler"
	"summershop-saga/pkg/utils"

	"github.com/google/uuid"
)

// Store is the slice of the durable store the payment service owns. Every
// update carries a version guard; a read-modify-write that loses the race
// gets a stale-version error and retries against the re-read row.
type Store interface {
	SavePayment(ctx context.Context, payment models.Payment) error
	GetPayment(ctx context.Context, paymentId string) (models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (models.Payment, error)
	GetPaymentByOrderId(ctx context.Context, orderId string) (models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, payment models.Payment) error
	UpdatePaymentMethod(ctx context.Context, paymentId, paymentMethod string, version int64) error
	GetProcessingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
}

// EventSink records events in the transactional outbox for later delivery.
type EventSink interface {
	SaveEvent(ctx context.Context, evt events.DomainEvent) error
}

const cacheKeyPrefix = "payment:idem:"

type Service struct {
	Store       Store
	Sink        EventSink
	Authorizer  authorizer.Authorizer
	Dispatcher  *events.Dispatcher
	Cache       repository.Repository[models.Payment]
	Retries     *scheduler.DelayQueue[string]
	AuthTimeout time.Duration
	RetryDelay  time.Duration
	SweepEvery  time.Duration
}

func NewService(store Store, sink EventSink, auth authorizer.Authorizer, cache repository.Repository[models.Payment]) *Service {
	authTimeout, err := time.ParseDuration(utils.GetEnv("AUTHORIZATION_TIMEOUT", "10s"))
	if err != nil {
		authTimeout = 10 * time.Second
	}
	retryDelay, err := time.ParseDuration(utils.GetEnv("RECONCILE_DELAY", "30s"))
	if err != nil {
		retryDelay = 30 * time.Second
	}
	sweepEvery, err := time.ParseDuration(utils.GetEnv("RECONCILE_SWEEP_INTERVAL", "1m"))
	if err != nil {
		sweepEvery = time.Minute
	}

	s := &Service{
		Store:       store,
		Sink:        sink,
		Authorizer:  auth,
		Dispatcher:  events.NewDispatcher(),
		Cache:       cache,
		Retries:     scheduler.NewQueue[string](64),
		AuthTimeout: authTimeout,
		RetryDelay:  retryDelay,
		SweepEvery:  sweepEvery,
	}

	events.Register(s.Dispatcher, events.EvtTypeOrderCreated, s.OnOrderCreated)
	events.Register(s.Dispatcher, events.EvtTypeOrderUpdated, s.OnOrderUpdated)
	events.Register(s.Dispatcher, events.EvtTypeOrderCancelled, s.OnOrderCancelled)

	return s
}

func (s *Service) HandleMessage(ctx context.Context, message kafka.KafkaMessage) error {
	return s.Dispatcher.Dispatch(ctx, message.Value)
}

// Submit is the idempotent entry point of the payment state machine. A
// repeated idempotency key returns the existing record unchanged; a new key
// creates a PROCESSING payment, records INITIATED, then runs authorization.
func (s *Service) Submit(ctx context.Context, req models.PaymentRequest) (models.Payment, error) {
	if cached, err := s.Cache.Load(ctx, cacheKeyPrefix+req.IdempotencyKey); err == nil {
		log.Printf("[PAYMENT] Duplicate submission for key %s (cache)", req.IdempotencyKey)
		return cached, nil
	}

	existing, err := s.Store.GetPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		log.Printf("[PAYMENT] Duplicate submission for key %s", req.IdempotencyKey)
		if cerr := s.Cache.Save(ctx, existing); cerr != nil {
			log.Printf("[PAYMENT] Failed to cache payment %s: %v", existing.Id, cerr)
		}
		return existing, nil
	}
	if !errors.Is(err, svcerror.ErrNotFound) {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Submit")
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	payment := models.Payment{
		Id:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		OrderId:        req.OrderId,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		PaymentMethod:  req.PaymentMethod,
		Status:         models.PAYMENT_STATUS_PROCESSING,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.Store.SavePayment(ctx, payment); err != nil {
		// a concurrent submission with the same key won the insert
		if errors.Is(err, svcerror.ErrConflict) {
			winner, gerr := s.Store.GetPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
			if gerr != nil {
				return models.Payment{}, svcerror.AddOp(gerr, "Payment.Submit")
			}
			log.Printf("[PAYMENT] Lost insert race for key %s, returning payment %s", req.IdempotencyKey, winner.Id)
			if cerr := s.Cache.Save(ctx, winner); cerr != nil {
				log.Printf("[PAYMENT] Failed to cache payment %s: %v", winner.Id, cerr)
			}
			return winner, nil
		}
		return models.Payment{}, svcerror.AddOp(err, "Payment.Submit")
	}

	if err := s.Sink.SaveEvent(ctx, s.paymentEvent(payment, events.EvtTypePaymentInitiated, payment.AmountCents)); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Submit")
	}

	payment = s.runAuthorization(ctx, payment)

	if err := s.Cache.Save(ctx, payment); err != nil {
		log.Printf("[PAYMENT] Failed to cache payment %s: %v", payment.Id, err)
	}

	return payment, nil
}

// runAuthorization settles a PROCESSING payment. An authorization error or
// timeout leaves the payment PROCESSING and schedules a reconciliation
// retry; it is never assumed FAILED.
func (s *Service) runAuthorization(ctx context.Context, payment models.Payment) models.Payment {
	authCtx, cancel := context.WithTimeout(ctx, s.AuthTimeout)
	defer cancel()

	result, err := s.Authorizer.Authorize(authCtx, payment)
	if err != nil {
		log.Printf("[PAYMENT] Authorization for %s did not settle, scheduling reconcile: %v", payment.Id, err)
		if perr := s.Retries.Push(scheduler.Entry[string]{
			ID:      payment.Id,
			Value:   payment.Id,
			ReadyAt: time.Now().Add(s.RetryDelay),
		}); perr != nil {
			log.Printf("[PAYMENT] Failed to schedule reconcile for %s: %v", payment.Id, perr)
		}
		return payment
	}

	if result.Approved {
		payment.Status = models.PAYMENT_STATUS_COMPLETED
		payment.TransactionId = result.TransactionId
	} else {
		payment.Status = models.PAYMENT_STATUS_FAILED
		payment.FailureReason = result.DeclineReason
	}

	if err := s.Store.UpdatePaymentStatus(ctx, payment); err != nil {
		log.Printf("[PAYMENT] Failed to persist outcome for %s: %+v", payment.Id, err)
		return payment
	}
	payment.Version++

	var evtType events.EventType
	if result.Approved {
		evtType = events.EvtTypePaymentCompleted
	} else {
		evtType = events.EvtTypePaymentFailed
	}
	if err := s.Sink.SaveEvent(ctx, s.paymentEvent(payment, evtType, payment.AmountCents)); err != nil {
		log.Printf("[PAYMENT] Failed to record %s event for %s: %+v", evtType, payment.Id, err)
	}

	return payment
}

func (s *Service) Get(ctx context.Context, paymentId string) (models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentId)
	if err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Get")
	}
	return payment, nil
}

// UpdateMethod changes the payment method of a not-yet-settled payment.
func (s *Service) UpdateMethod(ctx context.Context, paymentId string, req models.PaymentUpdateRequest) (models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentId)
	if err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.UpdateMethod")
	}

	if payment.Status != models.PAYMENT_STATUS_PROCESSING {
		return models.Payment{}, svcerror.New(
			svcerror.ErrInvalidState,
			svcerror.WithOp("Payment.UpdateMethod"),
			svcerror.WithMsg(fmt.Sprintf("cannot update payment in status %s", payment.Status)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	if err := s.Store.UpdatePaymentMethod(ctx, paymentId, req.PaymentMethod, payment.Version); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.UpdateMethod")
	}
	payment.PaymentMethod = req.PaymentMethod
	payment.Version++

	return payment, nil
}

// Refund refunds a completed payment. amountCents of 0 means a full refund.
func (s *Service) Refund(ctx context.Context, paymentId string, amountCents int64) (models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentId)
	if err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Refund")
	}

	if payment.Status != models.PAYMENT_STATUS_COMPLETED {
		return models.Payment{}, svcerror.New(
			svcerror.ErrInvalidState,
			svcerror.WithOp("Payment.Refund"),
			svcerror.WithMsg(fmt.Sprintf("cannot refund payment in status %s", payment.Status)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	if amountCents == 0 {
		amountCents = payment.AmountCents
	}
	if amountCents < 0 || amountCents > payment.AmountCents {
		return models.Payment{}, svcerror.New(
			svcerror.ErrInvalidAmount,
			svcerror.WithOp("Payment.Refund"),
			svcerror.WithMsg(fmt.Sprintf("refund of %d exceeds captured amount %d", amountCents, payment.AmountCents)),
			svcerror.WithTime(time.Now().UTC()),
		)
	}

	payment.Status = models.PAYMENT_STATUS_REFUNDED
	payment.RefundedAmountCents = amountCents

	if err := s.Store.UpdatePaymentStatus(ctx, payment); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Refund")
	}
	payment.Version++

	if err := s.Sink.SaveEvent(ctx, s.paymentEvent(payment, events.EvtTypePaymentRefunded, amountCents)); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.Refund")
	}

	if err := s.Cache.Save(ctx, payment); err != nil {
		log.Printf("[PAYMENT] Failed to cache payment %s: %v", payment.Id, err)
	}

	log.Printf("[PAYMENT] Refunded payment %s, amount %d", payment.Id, amountCents)
	return payment, nil
}

// CancelIfPending cancels a payment that never settled. Used only by the
// compensating path; a payment already terminal is a reported no-op.
func (s *Service) CancelIfPending(ctx context.Context, paymentId string) (models.Payment, error) {
	payment, err := s.Store.GetPayment(ctx, paymentId)
	if err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.CancelIfPending")
	}

	if payment.Status != models.PAYMENT_STATUS_PROCESSING {
		log.Printf("[PAYMENT] CancelIfPending: payment %s already %s, nothing to do", payment.Id, payment.Status)
		return payment, nil
	}

	payment.Status = models.PAYMENT_STATUS_CANCELLED

	if err := s.Store.UpdatePaymentStatus(ctx, payment); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.CancelIfPending")
	}
	payment.Version++

	if err := s.Sink.SaveEvent(ctx, s.paymentEvent(payment, events.EvtTypePaymentCancelled, payment.AmountCents)); err != nil {
		return models.Payment{}, svcerror.AddOp(err, "Payment.CancelIfPending")
	}

	log.Printf("[PAYMENT] Cancelled pending payment %s", payment.Id)
	return payment, nil
}

func (s *Service) OnOrderCreated(ctx context.Context, evt events.OrderEvent) error {
	log.Printf("[PAYMENT] Order %s created, payment will be submitted separately", evt.OrderId)
	return nil
}

func (s *Service) OnOrderUpdated(ctx context.Context, evt events.OrderEvent) error {
	log.Printf("[PAYMENT] Order %s updated", evt.OrderId)
	return nil
}

// OnOrderCancelled drives the compensating action for a cancelled order.
// Every branch re-checks the persisted payment status, so redelivering the
// same cancellation can never refund twice.
func (s *Service) OnOrderCancelled(ctx context.Context, evt events.OrderEvent) error {
	payment, err := s.Store.GetPaymentByOrderId(ctx, evt.OrderId)
	if err != nil {
		if errors.Is(err, svcerror.ErrNotFound) {
			log.Printf("[PAYMENT] No payment found for cancelled order %s", evt.OrderId)
			return nil
		}
		return svcerror.AddOp(err, "Payment.OnOrderCancelled")
	}

	switch payment.Status {
	case models.PAYMENT_STATUS_PROCESSING:
		// nothing captured yet
		if _, err := s.CancelIfPending(ctx, payment.Id); err != nil {
			return svcerror.AddOp(err, "Payment.OnOrderCancelled")
		}
	case models.PAYMENT_STATUS_COMPLETED:
		log.Printf("[PAYMENT] Order %s cancelled after capture, refunding payment %s", evt.OrderId, payment.Id)
		if _, err := s.Refund(ctx, payment.Id, 0); err != nil {
			return svcerror.AddOp(err, "Payment.OnOrderCancelled")
		}
	case models.PAYMENT_STATUS_REFUNDED, models.PAYMENT_STATUS_CANCELLED:
		log.Printf("[PAYMENT] Payment %s already compensated (%s)", payment.Id, payment.Status)
	case models.PAYMENT_STATUS_FAILED:
		log.Printf("[PAYMENT] Payment %s failed, nothing to compensate", payment.Id)
	default:
		log.Printf("[PAYMENT] Payment %s in unexpected status %s for cancelled order %s", payment.Id, payment.Status, evt.OrderId)
	}

	return nil
}

// RunReconciler resolves payments stranded in PROCESSING: entries scheduled
// after an authorization timeout plus a periodic sweep of the store.
func (s *Service) RunReconciler(ctx context.Context) error {
	ticker := time.NewTicker(s.SweepEvery)
	defer ticker.Stop()
	defer s.Retries.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-s.Retries.Out:
			s.reconcile(ctx, entry.Value)
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) reconcile(ctx context.Context, paymentId string) {
	payment, err := s.Store.GetPayment(ctx, paymentId)
	if err != nil {
		log.Printf("[PAYMENT] Reconcile: failed to load payment %s: %+v", paymentId, err)
		return
	}
	if payment.Status != models.PAYMENT_STATUS_PROCESSING {
		return
	}

	log.Printf("[PAYMENT] Reconciling payment %s", paymentId)
	s.runAuthorization(ctx, payment)
}

func (s *Service) sweep(ctx context.Context) {
	limit, err := strconv.Atoi(utils.GetEnv("RECONCILE_BATCH", "50"))
	if err != nil {
		limit = 50
	}

	stuck, err := s.Store.GetProcessingPayments(ctx, s.RetryDelay, limit)
	if err != nil {
		log.Printf("[PAYMENT] Reconcile sweep failed: %+v", err)
		return
	}
	for _, payment := range stuck {
		if perr := s.Retries.Push(scheduler.Entry[string]{
			ID:      payment.Id,
			Value:   payment.Id,
			ReadyAt: time.Now(),
		}); perr != nil {
			log.Printf("[PAYMENT] Failed to enqueue reconcile for %s: %v", payment.Id, perr)
		}
	}
}

func (s *Service) paymentEvent(payment models.Payment, evtType events.EventType, amountCents int64) events.PaymentEvent {
	return events.PaymentEvent{
		PaymentId:     payment.Id,
		EventType:     evtType,
		OrderId:       payment.OrderId,
		AmountCents:   amountCents,
		PaymentStatus: payment.Status,
		PaymentMethod: payment.PaymentMethod,
		FailureReason: payment.FailureReason,
		Timestamp:     time.Now().UTC(),
	}
}
