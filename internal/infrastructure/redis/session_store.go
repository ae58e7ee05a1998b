package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const sessionTokenKey = "console:session:token"

// RedisSessionStore is a read-only view of the operator's auth session.
// The marketplace owns the session; the console only checks it before
// privileged operations.
type RedisSessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (r *RedisSessionStore) Token(ctx context.Context) (string, error) {
	result, err := r.client.Get(ctx, sessionTokenKey).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return result, nil
}

func (r *RedisSessionStore) IsLoggedIn(ctx context.Context) (bool, error) {
	token, err := r.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}
