package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"summershop-saga/pkg/models"

	"github.com/google/uuid"
)

// End-to-end scenario driver: creates an order, submits its payment twice
// with the same idempotency key, then cancels the order and waits for the
// compensating refund/cancel to land on both sides.

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	orderURL   string
	paymentURL string
	http       *http.Client
}

func main() {
	orderURL := flag.String("order-url", "http://localhost:8081", "order service base URL")
	paymentURL := flag.String("payment-url", "http://localhost:8082", "payment service base URL")
	wait := flag.Duration("wait", 30*time.Second, "max time to wait for async convergence")
	flag.Parse()

	c := &client{
		orderURL:   *orderURL,
		paymentURL: *paymentURL,
		http:       &http.Client{Timeout: 15 * time.Second},
	}

	order := c.createOrder()
	log.Printf("Created order %s, total %d, status %s/%s",
		order.OrderId, order.TotalAmountCents, order.OrderStatus, order.PaymentStatus)

	key := uuid.NewString()
	payment := c.submitPayment(key, order)
	log.Printf("Submitted payment %s, status %s", payment.Id, payment.Status)

	dup := c.submitPayment(key, order)
	if dup.Id != payment.Id {
		log.Fatalf("FAIL: duplicate submission created a second payment (%s != %s)", dup.Id, payment.Id)
	}
	log.Printf("Duplicate submission returned the same payment %s", dup.Id)

	if payment.Status == models.PAYMENT_STATUS_FAILED {
		log.Printf("Payment declined (%s), expecting order to become PAYMENT_FAILED", payment.FailureReason)
		c.awaitOrderStatus(order.OrderId, models.ORDER_STATUS_PAYMENT_FAILED, *wait)
		log.Println("Scenario finished: payment-failed path OK")
		os.Exit(0)
	}

	c.awaitOrderStatus(order.OrderId, models.ORDER_STATUS_CONFIRMED, *wait)
	log.Printf("Order %s confirmed", order.OrderId)

	c.cancelOrder(order.OrderId)
	log.Printf("Cancelled order %s, awaiting compensation", order.OrderId)

	c.awaitPaymentStatus(payment.Id, models.PAYMENT_STATUS_REFUNDED, *wait)
	final := c.getPayment(payment.Id)
	if final.RefundedAmountCents != final.AmountCents {
		log.Fatalf("FAIL: refunded %d of %d", final.RefundedAmountCents, final.AmountCents)
	}
	log.Printf("Payment %s refunded in full (%d)", final.Id, final.RefundedAmountCents)

	log.Println("Scenario finished: cancel-with-refund path OK")
}

func (c *client) createOrder() models.Order {
	req := models.OrderRequest{
		CustomerId: "customer-" + uuid.NewString()[:8],
		Items: []models.OrderItemRequest{
			{ItemId: "item-1", ItemName: "Summer Hat", Quantity: 2, UnitPriceCents: 1000},
			{ItemId: "item-2", ItemName: "Beach Towel", Quantity: 1, UnitPriceCents: 2500},
		},
		ShippingAddress: "1 Harbour St",
	}

	var order models.Order
	c.post(c.orderURL+"/api/v1/orders", req, &order)
	return order
}

func (c *client) submitPayment(key string, order models.Order) models.Payment {
	req := models.PaymentRequest{
		IdempotencyKey: key,
		OrderId:        order.OrderId,
		AmountCents:    order.TotalAmountCents,
		Currency:       "USD",
		PaymentMethod:  "CREDIT_CARD",
	}

	var payment models.Payment
	c.post(c.paymentURL+"/api/v1/payments", req, &payment)
	return payment
}

func (c *client) cancelOrder(orderId string) {
	var order models.Order
	c.post(c.orderURL+"/api/v1/orders/"+orderId+"/cancel", nil, &order)
}

func (c *client) getOrder(orderId string) models.Order {
	var order models.Order
	c.get(c.orderURL+"/api/v1/orders/"+orderId, &order)
	return order
}

func (c *client) getPayment(paymentId string) models.Payment {
	var payment models.Payment
	c.get(c.paymentURL+"/api/v1/payments/"+paymentId, &payment)
	return payment
}

func (c *client) awaitOrderStatus(orderId string, want models.OrderStatus, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if order := c.getOrder(orderId); order.OrderStatus == want {
			return
		}
		time.Sleep(time.Second)
	}
	log.Fatalf("FAIL: order %s did not reach %s within %s", orderId, want, wait)
}

func (c *client) awaitPaymentStatus(paymentId string, want models.PaymentStatus, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if payment := c.getPayment(paymentId); payment.Status == want {
			return
		}
		time.Sleep(time.Second)
	}
	log.Fatalf("FAIL: payment %s did not reach %s within %s", paymentId, want, wait)
}

func (c *client) post(url string, body any, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("encode request: %v", err)
		}
	}
	resp, err := c.http.Post(url, "application/json", &buf)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	c.decode(url, resp, out)
}

func (c *client) get(url string, out any) {
	resp, err := c.http.Get(url)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	c.decode(url, resp, out)
}

func (c *client) decode(url string, resp *http.Response, out any) {
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		log.Fatalf("%s: decode response: %v", url, err)
	}
	if !api.Success {
		log.Fatalf("%s: %s (%s)", url, api.Message, string(api.Data))
	}
	if out != nil {
		if err := json.Unmarshal(api.Data, out); err != nil {
			log.Fatalf("%s: decode data: %v", url, err)
		}
	}
	fmt.Fprintf(os.Stderr, "OK %s -> %d\n", url, resp.StatusCode)
}
