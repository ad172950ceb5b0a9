package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/domain"
)

const (
	redisSessionKeyPrefix = "tma:session:"
	redisRecencyKey       = "tma:sessions:updated"
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// newRedisClient is overridable for tests.
var newRedisClient = func(opts *redis.Options) redisClient {
	return redis.NewClient(opts)
}

// RedisStore stores each session as a JSON string and indexes recency in a
// sorted set scored by updated_at in unix milliseconds. The two writes are not
// transactional; a crash between them leaves a session missing from Recent
// until its next upsert.
type RedisStore struct {
	client redisClient
	now    func() time.Time
}

// OpenRedisStore connects to Redis and verifies the connection with a ping.
func OpenRedisStore(ctx context.Context, cfg config.Config) (*RedisStore, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}

	client := newRedisClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newRedisStore(client), nil
}

func newRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, now: nowUTC}
}

func sessionKey(userID int64) string {
	return redisSessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Upsert(ctx context.Context, profile domain.UserProfile) error {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return err
	}
	if err := validateProfile(profile); err != nil {
		return err
	}

	profile = stamp(profile, s.now)
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(profile.UserID), payload, 0).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	member := redis.Z{
		Score:  float64(profile.UpdatedAt.UnixMilli()),
		Member: strconv.FormatInt(profile.UserID, 10),
	}
	if err := s.client.ZAdd(ctx, redisRecencyKey, member).Err(); err != nil {
		return fmt.Errorf("index session: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return domain.UserProfile{}, false, err
	}

	raw, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, fmt.Errorf("find session: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("decode session: %w", err)
	}

	return profile, true, nil
}

// Recent walks the recency index newest first. Index members whose session
// key has disappeared are skipped.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]domain.UserProfile, error) {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	members, err := s.client.ZRevRange(ctx, redisRecencyKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	profiles := make([]domain.UserProfile, 0, len(members))
	for _, member := range members {
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse session member %q: %w", member, err)
		}

		profile, found, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if found {
			profiles = append(profiles, profile)
		}
	}

	return profiles, nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return 0, err
	}

	count, err := s.client.ZCard(ctx, redisRecencyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (s *RedisStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return 0, err
	}

	lower := strconv.FormatInt(since.UnixMilli(), 10)
	count, err := s.client.ZCount(ctx, redisRecencyKey, lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := checkCall(ctx, s != nil && s.client != nil, "redis"); err != nil {
		return err
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
