package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"depotpos/backend/internal/domain"
)

// RedisStore keeps draft state in Redis under per-session keys with a TTL
// matching the session lifetime, so drafts vanish with the session the way
// browser session storage does.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func activeKey(sessionID string) string      { return "pos:draft:active:" + sessionID }
func namedKey(sessionID string) string       { return "pos:draft:named:" + sessionID }
func sellabilityKey(sessionID string) string { return "pos:sellability:" + sessionID }

func (s *RedisStore) GetActive(ctx context.Context, sessionID string) (*domain.DraftSnapshot, error) {
	val, err := s.client.Get(ctx, activeKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snapshot domain.DraftSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &snapshot, nil
}

func (s *RedisStore) PutActive(ctx context.Context, sessionID string, snapshot domain.DraftSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, activeKey(sessionID), payload, s.ttl).Err()
}

func (s *RedisStore) DeleteActive(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, activeKey(sessionID)).Err()
}

func (s *RedisStore) ListNamed(ctx context.Context, sessionID string) ([]domain.NamedDraft, error) {
	val, err := s.client.Get(ctx, namedKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var drafts []domain.NamedDraft
	if err := json.Unmarshal([]byte(val), &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return drafts, nil
}

func (s *RedisStore) putNamed(ctx context.Context, sessionID string, drafts []domain.NamedDraft) error {
	if len(drafts) == 0 {
		return s.client.Del(ctx, namedKey(sessionID)).Err()
	}
	payload, err := json.Marshal(drafts)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, namedKey(sessionID), payload, s.ttl).Err()
}

func (s *RedisStore) AppendNamed(ctx context.Context, sessionID string, d domain.NamedDraft) error {
	drafts, err := s.ListNamed(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.putNamed(ctx, sessionID, append(drafts, d))
}

func (s *RedisStore) PopNamed(ctx context.Context, sessionID string, draftID string) (*domain.NamedDraft, error) {
	drafts, err := s.ListNamed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i, d := range drafts {
		if d.ID != draftID {
			continue
		}
		popped := d
		remaining := append(drafts[:i:i], drafts[i+1:]...)
		if err := s.putNamed(ctx, sessionID, remaining); err != nil {
			return nil, err
		}
		return &popped, nil
	}
	return nil, ErrNotFound
}

func (s *RedisStore) DeleteNamed(ctx context.Context, sessionID string, draftID string) error {
	_, err := s.PopNamed(ctx, sessionID, draftID)
	return err
}

func (s *RedisStore) GetSellability(ctx context.Context, sessionID string) (map[string]bool, error) {
	val, err := s.client.Get(ctx, sellabilityKey(sessionID)).Result()
	if err == redis.Nil {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}

	overrides := map[string]bool{}
	if err := json.Unmarshal([]byte(val), &overrides); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return overrides, nil
}

func (s *RedisStore) PutSellability(ctx context.Context, sessionID string, overrides map[string]bool) error {
	payload, err := json.Marshal(overrides)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sellabilityKey(sessionID), payload, s.ttl).Err()
}

func (s *RedisStore) DeleteSellability(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sellabilityKey(sessionID)).Err()
}

func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, activeKey(sessionID), namedKey(sessionID), sellabilityKey(sessionID)).Err()
}
