package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/setvote/setvote/internal/domain"
)

// Views are a trending signal, not durable data: per-show per-day keys
// with a TTL slightly beyond the trending window.
const viewKeyTTL = 21 * 24 * time.Hour

type ViewCounter struct {
	client *redis.Client
	prefix string
}

func NewViewCounter(client *redis.Client, prefix string) *ViewCounter {
	if prefix == "" {
		prefix = "setvote:views"
	}
	return &ViewCounter{client: client, prefix: prefix}
}

func (v *ViewCounter) key(showID domain.ShowID, day string) string {
	return fmt.Sprintf("%s:%s:%s", v.prefix, showID, day)
}

func (v *ViewCounter) RecordView(ctx context.Context, showID domain.ShowID, day string) (int64, error) {
	key := v.key(showID, day)
	count, err := v.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis views: incr: %w", err)
	}
	if count == 1 {
		if err := v.client.Expire(ctx, key, viewKeyTTL).Err(); err != nil {
			return 0, fmt.Errorf("redis views: expire: %w", err)
		}
	}
	return count, nil
}

func (v *ViewCounter) ViewsByDay(ctx context.Context, showID domain.ShowID, days []string) (map[string]int64, error) {
	if len(days) == 0 {
		return map[string]int64{}, nil
	}

	keys := make([]string, len(days))
	for i, day := range days {
		keys[i] = v.key(showID, day)
	}

	// One MGET for the whole window instead of a call per day.
	values, err := v.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis views: mget: %w", err)
	}

	result := make(map[string]int64, len(days))
	for i, raw := range values {
		if raw == nil {
			result[days[i]] = 0
			continue
		}
		switch value := raw.(type) {
		case string:
			num, convErr := strconv.ParseInt(value, 10, 64)
			if convErr != nil {
				return nil, fmt.Errorf("redis views: bad value for %s: %w", days[i], convErr)
			}
			result[days[i]] = num
		case int64:
			result[days[i]] = value
		default:
			return nil, fmt.Errorf("redis views: unexpected type %T", raw)
		}
	}

	return result, nil
}

var _ domain.ViewCounter = (*ViewCounter)(nil)
