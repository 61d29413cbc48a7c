package utils

import (
	"context"
	"fmt"
	"time"

	"staybook/config"

	"github.com/go-redis/redis/v8"
)

// CacheClient serves the catalog and vendor stats caches.
var CacheClient *redis.Client

// InitCache connects the cache client to the configured cache database.
func InitCache() error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis (cache): %w", err)
	}
	CacheClient = client
	return nil
}

// GetCacheClient returns the cache client, or nil when it was never connected.
func GetCacheClient() *redis.Client {
	return CacheClient
}
