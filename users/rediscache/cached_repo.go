// Package rediscache puts a Redis read-through cache in front of a users.UserRepo.
//
// Users are immutable once created, so entries are only dropped by TTL. Unknown
// usernames are never cached.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-cookie-auth/users"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "user:"

var _ users.UserRepo = (*CachedUserRepo)(nil)

type CachedUserRepo struct {
	next   users.UserRepo
	rdb    redis.UniversalClient
	ttl    time.Duration
	log    zerolog.Logger
	flight singleflight.Group
}

// cachedUser is the Redis representation; unlike users.User it keeps the hash.
type cachedUser struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func New(next users.UserRepo, rdb redis.UniversalClient, ttl time.Duration, log zerolog.Logger) *CachedUserRepo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedUserRepo{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		log:  log,
	}
}

// GetByUsername serves from Redis when possible. Concurrent misses for the same name
// share one store lookup. A Redis failure falls through to the store.
func (c *CachedUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	key := keyPrefix + username

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if err := json.Unmarshal(raw, &cu); err == nil {
			return cu.toUser(), nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("key", key).Msg("user cache read failed")
	}

	v, err, _ := c.flight.Do(username, func() (any, error) {
		u, err := c.next.GetByUsername(context.WithoutCancel(ctx), username)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, u)
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	u := *v.(*users.User)
	return &u, nil
}

// Create writes through to the store and drops any stale entry for the name.
func (c *CachedUserRepo) Create(ctx context.Context, user *users.User) error {
	if err := c.next.Create(ctx, user); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, keyPrefix+user.Username).Err(); err != nil {
		c.log.Warn().Err(err).Str("username", user.Username).Msg("user cache delete failed")
	}
	return nil
}

func (c *CachedUserRepo) store(ctx context.Context, key string, u *users.User) {
	raw, err := json.Marshal(cachedUser{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("user cache encode failed")
		return
	}
	if err := c.rdb.Set(context.WithoutCancel(ctx), key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("user cache write failed")
	}
}

func (cu cachedUser) toUser() *users.User {
	return &users.User{
		Username:     cu.Username,
		PasswordHash: cu.PasswordHash,
		Role:         users.Role(cu.Role),
		CreatedAt:    cu.CreatedAt,
	}
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
