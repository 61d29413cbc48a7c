package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// HealthStatus represents current status of external services. Mongo is
// nil when the service runs on the in-memory store.
type HealthStatus struct {
	Mongo     *bool     `json:"mongo,omitempty"`
	Redis     []bool    `json:"redis"`
	CheckedAt time.Time `json:"checkedAt"`
}

var (
	currentHealth HealthStatus
	mu            sync.RWMutex
)

// GetHealthStatus returns latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	mu.RLock()
	defer mu.RUnlock()
	return currentHealth
}

// CheckHealth pings every dependency once and stores the snapshot.
func CheckHealth(ctx context.Context, redisClients []*redis.Client, mongoClient *mongo.Client) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := HealthStatus{CheckedAt: time.Now()}
	for _, client := range redisClients {
		err := client.Ping(ctx).Err()
		if err != nil {
			GetLogger().Warn("redis health check failed", zap.String("addr", client.Options().Addr), zap.Error(err))
		}
		status.Redis = append(status.Redis, err == nil)
	}
	if mongoClient != nil {
		healthy := mongoClient.Ping(ctx, nil) == nil
		status.Mongo = &healthy
	}

	mu.Lock()
	currentHealth = status
	mu.Unlock()
	return status
}

// StartHealthMonitor performs periodic health checks until ctx is done.
func StartHealthMonitor(ctx context.Context, redisClients []*redis.Client, mongoClient *mongo.Client) {
	go func() {
		CheckHealth(ctx, redisClients, mongoClient)

		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				CheckHealth(ctx, redisClients, mongoClient)
			}
		}
	}()
}
