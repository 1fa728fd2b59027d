// Package friends answers friendship lookups from Redis sets.
package friends

import (
	"context"

	"github.com/dkeye/Resonance/internal/domain"
	"github.com/redis/go-redis/v9"
)

func friendsKey(uid domain.UserID) string {
	return "friends:" + string(uid)
}

// RedisDirectory reads friendships from one set per user, friends:<userId>.
type RedisDirectory struct {
	client redis.Cmdable
}

func NewRedisDirectory(client redis.Cmdable) *RedisDirectory {
	return &RedisDirectory{client: client}
}

func (d *RedisDirectory) Friends(ctx context.Context, uid domain.UserID) ([]domain.UserID, error) {
	vals, err := d.client.SMembers(ctx, friendsKey(uid)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserID, 0, len(vals))
	for _, v := range vals {
		out = append(out, domain.UserID(v))
	}
	return out, nil
}
