package kafka

const (
	TopicOrder           string = "order.events"
	TopicPayment         string = "payment.events"
	TopicDeadLetterQueue string = "dlq.events"
)

const (
	GroupOrderService   string = "order-service-group"
	GroupPaymentService string = "payment-service-group"
)
