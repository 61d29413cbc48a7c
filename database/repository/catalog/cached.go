package catalogRepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	vendorKeyPrefix   = "catalog:vendor-of:"
	servicesKeyPrefix = "catalog:services-of:"
)

// CachedServiceCatalog fronts another catalog with Redis. Cache failures
// fall through to the backing catalog.
type CachedServiceCatalog struct {
	Next   ServiceCatalog
	Client *redis.Client
	TTL    time.Duration
	Logger *zap.Logger
}

func (c *CachedServiceCatalog) VendorOf(ctx context.Context, serviceID string) (string, error) {
	key := vendorKeyPrefix + serviceID
	vendor, err := c.Client.Get(ctx, key).Result()
	if err == nil {
		return vendor, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.Logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	vendor, err = c.Next.VendorOf(ctx, serviceID)
	if err != nil {
		return "", err
	}
	if err := c.Client.Set(ctx, key, vendor, c.TTL).Err(); err != nil {
		c.Logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return vendor, nil
}

func (c *CachedServiceCatalog) ServiceIDsByVendor(ctx context.Context, vendorID string) ([]string, error) {
	key := servicesKeyPrefix + vendorID
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err == nil {
		var ids []string
		if jerr := json.Unmarshal(raw, &ids); jerr == nil {
			return ids, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.Logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	ids, err := c.Next.ServiceIDsByVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ids); err == nil {
		if err := c.Client.Set(ctx, key, data, c.TTL).Err(); err != nil {
			c.Logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ids, nil
}
