package redis

import (
	"context"
	"encoding/json"

	"broadcast-console/internal/domain"

	"github.com/go-redis/redis/v8"
)

const settingsKey = "console:connection:settings"

// RedisSettingsStore persists the connection settings under a fixed
// key. They are read once at construction time and overwritten on
// every successful connect.
type RedisSettingsStore struct {
	client *redis.Client
}

func NewSettingsStore(client *redis.Client) *RedisSettingsStore {
	return &RedisSettingsStore{client: client}
}

func (r *RedisSettingsStore) Load(ctx context.Context) (*domain.ConnectionSettings, error) {
	result, err := r.client.Get(ctx, settingsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var settings domain.ConnectionSettings
	if err := json.Unmarshal([]byte(result), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *RedisSettingsStore) Save(ctx context.Context, settings *domain.ConnectionSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, settingsKey, data, 0).Err()
}
