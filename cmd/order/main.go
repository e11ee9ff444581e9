package main

import (
	"log"
	"strings"
	"time"

	"summershop-saga/cmd/order/server"
	"summershop-saga/pkg/events"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/utils"
)

func main() {
	port := utils.GetEnv("ORDER_SERVICE_PORT", "8081")
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
		Topics:  []string{kafka.TopicPayment},
		GroupId: kafka.GroupOrderService,
		Service: events.ProducerOrderSvc,
	}

	server := server.NewServer(sConf, prodConf, consConf)

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
