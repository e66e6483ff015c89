package config

import (
	"os"
	"strconv"
)

// Config holds the environment-driven settings shared by the service
// binaries. Every field has a default suitable for local development.
type Config struct {
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisHost string
	RedisPort int

	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string

	ConsulHost string
	ConsulPort int

	GatewayPort int
	ProductPort int
	OrderPort   int

	// ProductServiceURL is the fallback for the order service's synchronous
	// product lookups when Consul can't resolve an instance.
	ProductServiceURL string

	LogLevel  string
	LogFormat string
}

func Load() Config {
	return Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:     getEnv("POSTGRES_USER", "shop"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "shop123"),
		PostgresDB:       getEnv("POSTGRES_DB", "shop"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnvInt("REDIS_PORT", 6379),

		RabbitHost:     getEnv("RABBITMQ_HOST", "localhost"),
		RabbitPort:     getEnvInt("RABBITMQ_PORT", 5672),
		RabbitUser:     getEnv("RABBITMQ_USER", "guest"),
		RabbitPassword: getEnv("RABBITMQ_PASSWORD", "guest"),

		ConsulHost: getEnv("CONSUL_HOST", "localhost"),
		ConsulPort: getEnvInt("CONSUL_PORT", 8500),

		GatewayPort: getEnvInt("GATEWAY_PORT", 8080),
		ProductPort: getEnvInt("PRODUCT_PORT", 8081),
		OrderPort:   getEnvInt("ORDER_PORT", 8082),

		ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
