package heightcache

import (
	"context"
	"fmt"

	"github.com/go-jose/go-jose/v4/json"

	"github.com/boostfeed/stakeledger/pkg/redis"
)

const (
	// stateKey is the singleton key backing the ChainHeightState record.
	stateKey = "stakeledger:chain_height"

	// ChannelHeightUpdated carries refresh notifications for the realtime stream.
	ChannelHeightUpdated = "stakeledger:height.updated"
)

// RedisStore persists ChainHeightState in Redis and doubles as the Notifier
// that fans refreshes out over Pub/Sub.
type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	raw, err := s.Client.Get(ctx, stateKey)
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrNoCachedHeight
		}
		return nil, fmt.Errorf("load chain height state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode chain height state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode chain height state: %w", err)
	}
	// No TTL: a stale height is still the best answer when the oracle is down.
	if err := s.Client.Set(ctx, stateKey, raw, 0); err != nil {
		return fmt.Errorf("save chain height state: %w", err)
	}
	return nil
}

// HeightUpdated publishes the refreshed state; best effort.
func (s *RedisStore) HeightUpdated(ctx context.Context, state State) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	s.Client.Publish(ctx, ChannelHeightUpdated, raw)
}
