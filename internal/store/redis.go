package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the shared client. One connection pool serves the scan event
// queue, the daily check-in counters and the system configuration
// document; all keys carry the "schooltrack:" prefix.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects with short timeouts. Redis is a soft dependency here:
// when it is down the api keeps scanning and only stats, live config and
// queueing degrade, so calls must fail fast rather than hang.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy reports whether Redis answers a ping; feeds /healthz.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
