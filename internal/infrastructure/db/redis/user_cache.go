package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crmhub/crm-api/internal/core/domain"
)

const defaultUserTTL = 5 * time.Minute

// UserCache caches user records by id for the authentication path. It fails
// safe: any redis error is logged and treated as a miss.
// Key format: user:<id>
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewUserCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *UserCache {
	if ttl <= 0 {
		ttl = defaultUserTTL
	}
	return &UserCache{client: client, ttl: ttl, log: log}
}

// cachedUser mirrors domain.User with every field serialized.
type cachedUser struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"password_hash"`
	IsAdmin        bool       `json:"is_admin"`
	IsSuperuser    bool       `json:"is_superuser"`
	IsActive       bool       `json:"is_active"`
	SocialProvider string     `json:"social_provider,omitempty"`
	SocialID       string     `json:"social_id,omitempty"`
	DateJoined     time.Time  `json:"date_joined"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *UserCache) Get(ctx context.Context, id string) (*domain.User, bool) {
	raw, err := c.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("user_id", id).Msg("user cache get failed")
		}
		return nil, false
	}

	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil {
		c.log.Warn().Err(err).Str("user_id", id).Msg("user cache entry corrupt")
		return nil, false
	}
	u := domain.User(cu)
	return &u, true
}

func (c *UserCache) Set(ctx context.Context, u *domain.User) {
	raw, err := json.Marshal(cachedUser(*u))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, userKey(u.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", u.ID).Msg("user cache set failed")
	}
}

func (c *UserCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, userKey(id)).Err(); err != nil {
		c.log.Warn().Err(err).Str("user_id", id).Msg("user cache invalidate failed")
	}
}

func userKey(id string) string {
	return "user:" + id
}
