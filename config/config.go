package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Storage. STORAGE_DRIVER is "mongo" or "memory".
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DatabaseName  string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int           `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int           `mapstructure:"REDIS_QUEUE_DB"`
	StatsCacheTTL time.Duration `mapstructure:"STATS_CACHE_TTL"`

	// Payment gateway.
	StripeKey          string        `mapstructure:"STRIPE_KEY"`
	DefaultCurrency    string        `mapstructure:"DEFAULT_CURRENCY"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	GatewayMaxAttempts int           `mapstructure:"GATEWAY_MAX_ATTEMPTS"`

	// ClaimTTL bounds how long an in-flight gateway operation may hold a reservation.
	ClaimTTL time.Duration `mapstructure:"CLAIM_TTL"`

	// RabbitMQ for lifecycle events. Empty disables publishing.
	AMQPURL string `mapstructure:"AMQP_URL"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("STORAGE_DRIVER", "mongo")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017/?replicaSet=rs0")
	viper.SetDefault("DATABASE_NAME", "staybook")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)
	viper.SetDefault("STATS_CACHE_TTL", "30s")
	viper.SetDefault("DEFAULT_CURRENCY", "usd")
	viper.SetDefault("GATEWAY_TIMEOUT", "15s")
	viper.SetDefault("GATEWAY_MAX_ATTEMPTS", 2)
	viper.SetDefault("CLAIM_TTL", "2m")
	viper.SetDefault("AMQP_URL", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
