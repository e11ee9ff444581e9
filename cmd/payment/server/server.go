package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"summershop-saga/cmd/payment/server/authorizer"
	"summershop-saga/cmd/payment/server/handler"
	"summershop-saga/cmd/payment/server/service"
	"summershop-saga/pkg/database"
	"summershop-saga/pkg/kafka"
	"summershop-saga/pkg/models"
	"summershop-saga/pkg/outbox"
	"summershop-saga/pkg/repository"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Config   ServerConfig
	Producer *kafka.Producer
	Relay    *outbox.Relay
	Consumer *kafka.Consumer
	Service  *service.Service
	Handler  *handler.Handler
	Router   *gin.Engine
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func NewServer(conf ServerConfig, prodConf kafka.ProducerConfig, consConf kafka.ConsumerConfig) *Server {
	producer := kafka.NewProducer(prodConf)
	db := database.NewPGDatabase()

	relay := outbox.NewRelay(producer, db, kafka.TopicPayment)

	auth, err := authorizer.NewAuthorizer(authorizer.AuthorizerMock)
	if err != nil {
		panic(err)
	}

	cache, err := repository.NewRepository(context.Background(), repository.RepositoryRedis, func(p models.Payment) string {
		return "payment:idem:" + p.IdempotencyKey
	})
	if err != nil {
		panic(err)
	}

	svc := service.NewService(db, relay, auth, cache)
	paymentHandler := handler.NewHandler(svc)
	consumer := kafka.NewConsumer(consConf, relay)

	server := &Server{
		Config:   conf,
		Producer: producer,
		Relay:    relay,
		Consumer: consumer,
		Service:  svc,
		Handler:  paymentHandler,
	}

	server.SetupRouter()

	return server
}

func (s *Server) SetupRouter() {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		payments := api.Group("/payments")
		{
			payments.POST("", s.Handler.SubmitPayment)
			payments.GET("/:id", s.Handler.GetPayment)
			payments.PUT("/:id", s.Handler.UpdatePayment)
			payments.POST("/:id/refund", s.Handler.RefundPayment)
		}
	}
	router.GET("/health", s.Handler.HealthCheck)

	s.Router = router
}

func (s *Server) Start() error {
	log.Println("Starting Payment Service...")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", s.Config.Port),
		Handler:      s.Router,
		ReadTimeout:  s.Config.ReadTimeout,
		WriteTimeout: s.Config.WriteTimeout,
		IdleTimeout:  s.Config.IdleTimeout,
	}

	g.Go(func() error {
		log.Printf("Payment API listening on %s", s.Config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := s.Consumer.ConsumeWithRetry(ctx, s.Service.HandleMessage, 3)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := s.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := s.Service.RunReconciler(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return s.HandleShutdown(ctx, g, srv)
}

func (s *Server) HandleShutdown(ctx context.Context, g *errgroup.Group, srv *http.Server) error {
	<-ctx.Done()
	log.Println("Shutdown signal received, commencing graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server: %v", err)
	}
	if err := s.Producer.Close(); err != nil {
		log.Printf("Error closing producer: %v", err)
	}
	if err := s.Consumer.Close(); err != nil {
		log.Printf("Error closing consumer: %v", err)
	}

	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}

	log.Println("Payment Service stopped cleanly")
	return nil
}
