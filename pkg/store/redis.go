package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"plutus/pkg/config"
	"plutus/pkg/httpx"

	"github.com/redis/go-redis/v9"
)

// RedisErrorMessage describes Redis failures to clients.
const RedisErrorMessage = "redis operation failed"

// NewRedisClient dials cfg.URL and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("store: REDIS_URL is required for the redis driver")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	opts.ReadTimeout = time.Duration(cfg.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(cfg.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(cfg.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return client, nil
}

// Redis stores each record as one JSON string under <prefix>:user:<email>.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "plutus"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(email string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, email)
}

func (r *Redis) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	raw, err := r.rdb.Get(ctx, r.key(email)).Bytes()
	if err != nil {
		return nil, wrapRedis(err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("store: decode user %s: %w", email, err)
	}
	return &u, nil
}

func (r *Redis) Save(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	stamp(u)
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("store: encode user: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(u.Email), b, 0).Err(); err != nil {
		return wrapRedis(err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

// wrapRedis maps redis.Nil to a 404 carrying ErrNotFound and every other
// failure to a 502.
func wrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return httpx.NotFound(ErrNotFound, "User not found.")
	}
	return httpx.NewError(err, http.StatusBadGateway, RedisErrorMessage)
}
