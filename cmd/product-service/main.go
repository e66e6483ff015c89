package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/cache"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/config"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/consumer"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/db"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/discovery"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/handlers"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/logging"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/messaging"
)

const (
	serviceName = "product-service"
	serviceID   = "product-service-1"

	// productQueue is this service's private queue bound to the shared
	// order_events exchange.
	productQueue = "order_events_product"
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

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(logger, cfg.RedisHost, cfg.RedisPort, 5*time.Minute)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Connect to RabbitMQ. The participant is useless without the bus, so a
	// failed connection (after retries) is fatal.
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

	// Register with Consul
	err = consul.Register(discovery.ServiceConfig{
		Name: serviceName,
		ID:   serviceID,
		Port: cfg.ProductPort,
		Tags: []string{"api", "products"},
	})
	if err != nil {
		logger.Fatalf("Failed to register service: %v", err)
	}

	// Create repositories
	productRepo := db.NewProductRepository(database)
	cachedRepo := db.NewCachedProductRepository(logger, productRepo, redisCache)

	// Start the saga participant
	ctx, cancel := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		startStockConsumer(ctx, logger, rabbitMQ, cachedRepo, redisCache)
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
		redisCache.Close()
		database.Close()
		os.Exit(0)
	}()

	// Create handler
	productHandler := handlers.NewProductHandler(logger, cachedRepo)

	// Setup router
	router := gin.Default()

	router.GET("/health", productHandler.HealthCheck)
	router.GET("/products", productHandler.ListProducts)
	router.GET("/products/:id", productHandler.GetProduct)
	router.POST("/products", productHandler.CreateProduct)
	router.DELETE("/products/:id", productHandler.DeleteProduct)

	logger.Infof("🚀 %s starting on port %d", serviceName, cfg.ProductPort)
	if err := router.Run(addr(cfg.ProductPort)); err != nil {
		logger.Fatalf("Server stopped: %v", err)
	}
}

// startStockConsumer declares the broadcast topology and runs the stock
// consumer until ctx is cancelled. Declarations are idempotent: redeclaring
// an existing exchange or queue with matching properties is a no-op.
func startStockConsumer(ctx context.Context, logger *zap.SugaredLogger, mq *messaging.RabbitMQ, store consumer.ProductStore, ledger consumer.ProcessedLedger) {
	if err := mq.DeclareFanoutExchange(messaging.OrderEventsExchange); err != nil {
		logger.Fatalf("Failed to declare exchange: %v", err)
	}
	if err := mq.DeclareQueue(productQueue); err != nil {
		logger.Fatalf("Failed to declare queue: %v", err)
	}
	if err := mq.BindQueue(productQueue, messaging.OrderEventsExchange); err != nil {
		logger.Fatalf("Failed to bind queue: %v", err)
	}

	deliveries, err := mq.Consume(productQueue)
	if err != nil {
		logger.Fatalf("Failed to consume messages: %v", err)
	}

	stockConsumer := consumer.NewStockConsumer(logger, store, mq, ledger)
	stockConsumer.Run(ctx, deliveries)
}

func addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
