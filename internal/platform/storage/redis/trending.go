package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/setvote/setvote/internal/domain"
)

// Trending keeps decayed popularity scores in a sorted set so the top-N
// read stays a single ZREVRANGE.
type Trending struct {
	client *redis.Client
	key    string
}

func NewTrending(client *redis.Client, key string) *Trending {
	if key == "" {
		key = "setvote:trending"
	}
	return &Trending{client: client, key: key}
}

func (t *Trending) SetScores(ctx context.Context, scores []domain.ShowScore) error {
	if len(scores) == 0 {
		return nil
	}

	members := make([]redis.Z, len(scores))
	for i, score := range scores {
		members[i] = redis.Z{Score: score.Score, Member: string(score.ShowID)}
	}

	// Replace the whole set atomically so delisted shows drop out.
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, t.key)
	pipe.ZAdd(ctx, t.key, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis trending: set scores: %w", err)
	}
	return nil
}

func (t *Trending) Top(ctx context.Context, n int) ([]domain.ShowScore, error) {
	if n <= 0 {
		return nil, nil
	}

	members, err := t.client.ZRevRangeWithScores(ctx, t.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis trending: top: %w", err)
	}

	result := make([]domain.ShowScore, 0, len(members))
	for _, member := range members {
		id, ok := member.Member.(string)
		if !ok {
			return nil, fmt.Errorf("redis trending: unexpected member type %T", member.Member)
		}
		result = append(result, domain.ShowScore{ShowID: domain.ShowID(id), Score: member.Score})
	}
	return result, nil
}

var _ domain.TrendingStore = (*Trending)(nil)
