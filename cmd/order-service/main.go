package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/client"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/config"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/consumer"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/db"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/discovery"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/handlers"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/logging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/messaging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/publisher"
)

const (
	serviceName = "order-service"
	serviceID   = "order-service-1"

	// orderQueue is this service's private queue bound to the shared
	// order_events exchange; it receives every broadcast, including the
	// service's own, and reacts only to compensations.
	orderQueue = "order_events_order"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(logger, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(logger, cfg.RabbitHost, cfg.RabbitPort, cfg.RabbitUser, cfg.RabbitPassword)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitMQ.Close()

	// Connect to Consul
	consul, err := discovery.NewConsulClient(logger, cfg.ConsulHost, cfg.ConsulPort)
	if err != nil {
		logger.Fatalf("Failed to connect to Consul: %v", err)
	}

	err = consul.Register(discovery.ServiceConfig{
		Name: serviceName,
		ID:   serviceID,
		Port: cfg.OrderPort,
		Tags: []string{"api", "orders"},
	})
	if err != nil {
		logger.Fatalf("Failed to register service: %v", err)
	}

	// Create publisher and repositories
	orderPublisher := publisher.NewOrderPublisher(logger, rabbitMQ)
	orderRepo := db.NewOrderRepository(database)

	// Resolve the product service through Consul, falling back to the
	// configured URL when nothing is registered yet.
	productURL, err := consul.GetServiceURL("product-service")
	if err != nil {
		logger.Warnf("⚠️ Could not resolve product-service via Consul, using fallback: %v", err)
		productURL = cfg.ProductServiceURL
	}
	productClient := client.NewProductClient(productURL)

	// Start the compensation consumer
	ctx, cancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		startCompensationConsumer(ctx, logger, rabbitMQ, orderRepo)
	}()

	// Shut down in order: stop consuming before closing the connection so
	// in-flight messages are redelivered instead of lost.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
		<-consumerDone
		consul.Deregister(serviceID)
		rabbitMQ.Close()
		database.Close()
		os.Exit(0)
	}()

	// Create handler
	orderHandler := handlers.NewOrderHandler(logger, orderRepo, productClient, orderPublisher)

	// Setup router
	router := gin.Default()

	router.GET("/health", orderHandler.HealthCheck)
	router.GET("/orders", orderHandler.ListOrders)
	router.GET("/orders/:id", orderHandler.GetOrder)
	router.POST("/orders", orderHandler.CreateOrder)
	router.PATCH("/orders/:id/status", orderHandler.UpdateOrderStatus)

	logger.Infof("🚀 %s starting on port %d", serviceName, cfg.OrderPort)
	if err := router.Run(fmt.Sprintf(":%d", cfg.OrderPort)); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}

// startCompensationConsumer declares the broadcast topology and reacts to
// STOCK_UPDATE_FAILED events until ctx is cancelled.
func startCompensationConsumer(ctx context.Context, logger *zap.SugaredLogger, mq *messaging.RabbitMQ, orders consumer.OrderStore) {
	if err := mq.DeclareFanoutExchange(messaging.OrderEventsExchange); err != nil {
		logger.Fatalf("Failed to declare exchange: %v", err)
	}
	if err := mq.DeclareQueue(orderQueue); err != nil {
		logger.Fatalf("Failed to declare queue: %v", err)
	}
	if err := mq.BindQueue(orderQueue, messaging.OrderEventsExchange); err != nil {
		logger.Fatalf("Failed to bind queue: %v", err)
	}

	deliveries, err := mq.Consume(orderQueue)
	if err != nil {
		logger.Fatalf("Failed to consume messages: %v", err)
	}

	compensationConsumer := consumer.NewOrderCompensationConsumer(logger, orders)
	compensationConsumer.Run(ctx, deliveries)
}
