package redis_client

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects and pings. The pool scales with the CPU count.
func NewRedisClient(host string, port int, password string) (*redis.Client, error) {
	maxPool := runtime.NumCPU() * 8
	if maxPool > 256 {
		maxPool = 256
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		PoolSize:     maxPool,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancelFunc := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFunc()
	if err := rc.Ping(ctx).Err(); err != nil {
		zap.L().Error("redis_connect", zap.Error(err))
		_ = rc.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rc, nil
}
