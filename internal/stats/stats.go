// Package stats maintains daily check-in counters in Redis, written by the
// worker and read by the admin metrics endpoint.
package stats

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "schooltrack:checkins:"

// counterTTL keeps roughly six weeks of daily counters around.
const counterTTL = 40 * 24 * time.Hour

// Recorder bumps and reads per-day check-in counters.
type Recorder struct {
	rdb *redis.Client
}

// NewRecorder creates a recorder over the given client.
func NewRecorder(rdb *redis.Client) *Recorder {
	return &Recorder{rdb: rdb}
}

// KeyFor returns the counter key for the day containing t.
func KeyFor(t time.Time) string {
	return keyPrefix + t.UTC().Format("2006-01-02")
}

// RecordCheckIn increments the counter for the day containing t.
func (r *Recorder) RecordCheckIn(ctx context.Context, t time.Time) error {
	key := KeyFor(t)
	pipe := r.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, counterTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// TodayCheckins returns today's counter; a missing key reads as zero.
func (r *Recorder) TodayCheckins(ctx context.Context) (int64, error) {
	n, err := r.rdb.Get(ctx, KeyFor(time.Now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
