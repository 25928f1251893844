package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/octobees/supplier-outreach/internal/entity"
)

const (
	defaultKeyPrefix = "outreach:sends"
	dayKeyTTL        = 48 * time.Hour
)

// RedisLedger keeps per-day counters in Redis so several processes can share
// one allowance. Counts have day granularity: CountBetween sums the whole
// days touched by [from, to).
type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger connects to redisURL.
func NewRedisLedger(redisURL string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLedger{client: redis.NewClient(opts), prefix: defaultKeyPrefix}, nil
}

// NewRedisLedgerFromClient wraps an existing client.
func NewRedisLedgerFromClient(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisLedger{client: client, prefix: prefix}
}

// Client exposes the underlying connection for health checks.
func (l *RedisLedger) Client() *redis.Client { return l.client }

func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func (l *RedisLedger) CountBetween(ctx context.Context, status entity.SendStatus, from, to time.Time) (int, error) {
	var keys []string
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		keys = append(keys, l.dayKey(day, status))
	}
	if len(keys) == 0 {
		return 0, nil
	}
	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter value %q: %w", s, err)
		}
		total += n
	}
	return total, nil
}

func (l *RedisLedger) LastSentAt(ctx context.Context) (time.Time, error) {
	ms, err := l.client.Get(ctx, l.prefix+":last_sent").Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (l *RedisLedger) Record(ctx context.Context, rec entity.SendRecord) error {
	key := l.dayKey(startOfDay(rec.At), rec.Status)
	pipe := l.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dayKeyTTL)
	if rec.Status == entity.SendSent {
		pipe.Set(ctx, l.prefix+":last_sent", rec.At.UnixMilli(), dayKeyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (l *RedisLedger) dayKey(day time.Time, status entity.SendStatus) string {
	return l.prefix + ":" + day.Format(time.DateOnly) + ":" + string(status)
}
