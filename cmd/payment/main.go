package main

import (
	"log"
	"strings"
	"time"

	"summershop-saga/cmd/payment/server"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/utils"
)

func main() {
	port := utils.GetEnv("PAYMENT_SERVICE_PORT", "8082")
	kafkaBrokers := utils.GetEnv("KAFKA_BROKERS", "kafka:9092")

	brokers := strings.Split(kafkaBrokers, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	sConf := server.ServerConfig{
		Port:         port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	prodConf := kafka.ProducerConfig{
		Brokers: brokers,
	}

	consConf := kafka.ConsumerConfig{
		Brokers: brokers,
		Topics:  []string{kafka.TopicOrder},
		GroupId: kafka.GroupPaymentService,
		Service: events.ProducerPaymentSvc,
	}

	server := server.NewServer(sConf, prodConf, consConf)

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
