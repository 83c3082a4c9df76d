package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"

	"github.com/go-redis/redis"
	"github.com/sirupsen/logrus"
)

const (
	blacklistPrefix = "black-list:"
	userPrefix      = "user:"
)

// Cache fronts redis with a revoked-token set and a read-through user cache.
// Redis failures never reach the caller: they are logged and reported as a miss.
type Cache struct {
	client  *redis.Client
	userTTL time.Duration
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a redis client whose dial, read, write and pool waits are all
// bounded by timeout. The client ignores context deadlines, so these are the
// only limits a cache call has.
func NewClient(addr, password string, db int, timeout time.Duration) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolTimeout:  timeout,
	})
}

func New(client *redis.Client, userTTL, timeout time.Duration, opts ...Option) *Cache {
	c := &Cache{
		client:  client,
		userTTL: userTTL,
		timeout: timeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type lookupState int

const (
	lookupMiss lookupState = iota
	lookupHit
	lookupFailed
)

// lookup keeps "not cached" and "cache broken" apart internally; both collapse to
// the same outcome at the public boundary.
type lookup struct {
	state lookupState
	value string
	err   error
}

func (c *Cache) get(ctx context.Context, key string) lookup {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	val, err := c.client.WithContext(ctx).Get(key).Result()
	if err == redis.Nil {
		return lookup{state: lookupMiss}
	}
	if err != nil {
		return lookup{state: lookupFailed, err: err}
	}
	return lookup{state: lookupHit, value: val}
}

func (c *Cache) IsRevoked(ctx context.Context, token string) bool {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.client.WithContext(ctx).Exists(blacklistPrefix + token).Result()
	if err != nil {
		logrus.WithError(err).Warn("Blacklist lookup failed, treating token as not revoked")
		return false
	}
	return n > 0
}

// Revoke blacklists token until expiresAt. Tokens that are already expired are skipped.
func (c *Cache) Revoke(ctx context.Context, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.WithContext(ctx).Set(blacklistPrefix+token, "1", ttl).Err(); err != nil {
		logrus.WithError(err).Warn("Failed to blacklist token")
	}
}

// Claim blacklists token until expiresAt and reports whether this call was the one
// that did it. A redis failure counts as claimed, matching IsRevoked.
func (c *Cache) Claim(ctx context.Context, token string, expiresAt time.Time) bool {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return false
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	claimed, err := c.client.WithContext(ctx).SetNX(blacklistPrefix+token, "1", ttl).Result()
	if err != nil {
		logrus.WithError(err).Warn("Failed to claim token, allowing its use")
		return true
	}
	return claimed
}

func (c *Cache) GetUser(ctx context.Context, username string) (*entity.User, bool) {
	res := c.get(ctx, userPrefix+username)
	switch res.state {
	case lookupMiss:
		return nil, false
	case lookupFailed:
		logrus.WithError(res.err).WithField("username", username).Warn("User cache lookup failed")
		return nil, false
	}

	var cached cachedUser
	if err := json.Unmarshal([]byte(res.value), &cached); err != nil {
		logrus.WithError(err).WithField("username", username).Warn("Discarding undecodable cached user")
		return nil, false
	}
	return cached.toEntity(), true
}

func (c *Cache) PutUser(ctx context.Context, user *entity.User) {
	if user == nil || c.userTTL <= 0 {
		return
	}

	payload, err := json.Marshal(newCachedUser(user))
	if err != nil {
		logrus.WithError(err).WithField("username", user.Username).Warn("Failed to encode user for cache")
		return
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err = c.client.WithContext(ctx).Set(userPrefix+user.Username, payload, c.userTTL).Err(); err != nil {
		logrus.WithError(err).WithField("username", user.Username).Warn("Failed to cache user")
	}
}

func (c *Cache) EvictUser(ctx context.Context, username string) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.WithContext(ctx).Del(userPrefix + username).Err(); err != nil {
		logrus.WithError(err).WithField("username", username).Warn("Failed to evict cached user")
	}
}

// Ping reports whether redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.WithContext(ctx).Ping().Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// cachedUser is the wire form of a cached user. The password hash is never cached;
// credentials are always checked against the database.
type cachedUser struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Confirmed bool      `json:"confirmed"`
	Role      string    `json:"role"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newCachedUser(u *entity.User) cachedUser {
	cached := cachedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Confirmed: u.Confirmed,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Avatar.Valid {
		avatar := u.Avatar.String
		cached.Avatar = &avatar
	}
	return cached
}

func (c cachedUser) toEntity() *entity.User {
	user := &entity.User{
		ID:        c.ID,
		Username:  c.Username,
		Email:     c.Email,
		Confirmed: c.Confirmed,
		Role:      entity.Role(c.Role),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Avatar != nil {
		user.Avatar = sql.NullString{String: *c.Avatar, Valid: true}
	}
	return user
}
