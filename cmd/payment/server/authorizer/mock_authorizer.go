package authorizer

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"time"

	"summershop-saga/pkg/models"
	"summershop-saga/pkg/utils"

	"github.com/google/uuid"
)

// MockAuthorizer stands in for a real payment gateway: it waits a bit, then
// approves or declines according to FailureRate.
type MockAuthorizer struct {
	FailureRate    float64
	ProcessingTime time.Duration
}

func NewMockAuthorizer() *MockAuthorizer {
	rate, err := strconv.ParseFloat(utils.GetEnv("AUTHORIZER_FAILURE_RATE", "0.1"), 64)
	if err != nil {
		rate = 0.1
	}
	delay, err := time.ParseDuration(utils.GetEnv("AUTHORIZER_DELAY", "1s"))
	if err != nil {
		delay = time.Second
	}

	return &MockAuthorizer{
		FailureRate:    rate,
		ProcessingTime: delay,
	}
}

var declineReasons = []string{
	"Insufficient funds",
	"Card declined",
	"Invalid card number",
	"Expired card",
	"Transaction limit exceeded",
	"Bank rejected transaction",
}

func (m *MockAuthorizer) Authorize(ctx context.Context, payment models.Payment) (models.AuthorizationResult, error) {
	log.Printf("[MOCK] Authorizing payment %s for order %s, amount %d %s",
		payment.Id,
		payment.OrderId,
		payment.AmountCents,
		payment.Currency,
	)

	select {
	case <-time.After(m.ProcessingTime):
	case <-ctx.Done():
		return models.AuthorizationResult{}, ctx.Err()
	}

	if rand.Float64() < m.FailureRate {
		reason := declineReasons[rand.Intn(len(declineReasons))]
		log.Printf("[MOCK] Authorization DECLINED for payment %s: %s", payment.Id, reason)

		return models.AuthorizationResult{
			Approved:      false,
			DeclineReason: reason,
		}, nil
	}

	transactionId := fmt.Sprintf("TXN-%s", uuid.NewString()[:8])
	log.Printf("[MOCK] Authorization APPROVED for payment %s, transaction: %s", payment.Id, transactionId)

	return models.AuthorizationResult{
		Approved:      true,
		TransactionId: transactionId,
	}, nil
}
