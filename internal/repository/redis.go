package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agendazap/internal/config"
	"agendazap/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStateRepository shares conversation state between instances.
type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func proposalKey(key string) string { return "proposal:" + key }
func sessionKey(key string) string  { return "session:" + key }
func rateLimitKey(key string) string {
	return "rate_limit:" + key
}

var errNilClient = errors.New("redis client is nil")

func (r *RedisStateRepository) GetProposal(ctx context.Context, key string) (*models.Proposal, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, proposalKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal from redis: %w", err)
	}
	return decodeProposal(val)
}

// SetProposal stores p until its ExpiresAt, or for the default ttl when it
// has none.
func (r *RedisStateRepository) SetProposal(ctx context.Context, key string, p *models.Proposal) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}

	ttl := r.ttl
	if !p.ExpiresAt.IsZero() {
		ttl = time.Until(p.ExpiresAt)
		if ttl <= 0 {
			return r.ClearProposal(ctx, key)
		}
	}

	if err := r.client.Set(ctx, proposalKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set proposal in redis: %w", err)
	}
	return nil
}

// TakeProposal uses GETDEL so a retried confirmation cannot read the same
// proposal twice.
func (r *RedisStateRepository) TakeProposal(ctx context.Context, key string) (*models.Proposal, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.GetDel(ctx, proposalKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take proposal from redis: %w", err)
	}
	return decodeProposal(val)
}

func (r *RedisStateRepository) ClearProposal(ctx context.Context, key string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, proposalKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete proposal from redis: %w", err)
	}
	return nil
}

func decodeProposal(val string) (*models.Proposal, error) {
	var p models.Proposal
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return &p, nil
}

func (r *RedisStateRepository) GetSession(ctx context.Context, key string) (*models.Session, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, sessionKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStateRepository) SetSession(ctx context.Context, s *models.Session) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.Key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) ClearSession(ctx context.Context, key string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	rk := rateLimitKey(key)
	count, err := r.client.Incr(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rk, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
