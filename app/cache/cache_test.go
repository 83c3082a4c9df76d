package cache_test

import (
	"context"
	"database/sql"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/cache"
	"github.com/vibast-solutions/ms-go-contacts/app/entity"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.New(client, 15*time.Minute, time.Second), mr
}

func TestCache_RevokeAndIsRevoked(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	assert.False(t, c.IsRevoked(ctx, "token-a"))

	c.Revoke(ctx, "token-a", time.Now().Add(10*time.Minute))

	assert.True(t, c.IsRevoked(ctx, "token-a"))
	assert.False(t, c.IsRevoked(ctx, "token-b"))

	ttl := mr.TTL("black-list:token-a")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "unexpected ttl %v", ttl)

	mr.FastForward(11 * time.Minute)
	assert.False(t, c.IsRevoked(ctx, "token-a"))
}

func TestCache_RevokeSkipsExpiredToken(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	c.Revoke(ctx, "expired", time.Now().Add(-time.Second))

	assert.False(t, mr.Exists("black-list:expired"))
	assert.False(t, c.IsRevoked(ctx, "expired"))
}

func TestCache_ClaimIsSingleUse(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	assert.True(t, c.Claim(ctx, "reset-a", time.Now().Add(10*time.Minute)))
	assert.False(t, c.Claim(ctx, "reset-a", time.Now().Add(10*time.Minute)))
	assert.True(t, c.IsRevoked(ctx, "reset-a"))

	ttl := mr.TTL("black-list:reset-a")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "unexpected ttl %v", ttl)

	assert.True(t, c.Claim(ctx, "reset-b", time.Now().Add(time.Minute)))
}

func TestCache_ClaimRejectsExpiredToken(t *testing.T) {
	c, mr := newCache(t)

	assert.False(t, c.Claim(context.Background(), "expired", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists("black-list:expired"))
}

func TestCache_ClaimAfterRevokeFails(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	c.Revoke(ctx, "reset-c", time.Now().Add(time.Minute))
	assert.False(t, c.Claim(ctx, "reset-c", time.Now().Add(time.Minute)))
}

func TestCache_ClaimConcurrentOnlyOneWins(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Minute)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Claim(ctx, "reset-d", expiresAt) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestCache_UserRoundTrip(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	user := &entity.User{
		ID:           7,
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: "secret-hash",
		Confirmed:    true,
		Role:         entity.RoleAdmin,
		Avatar:       sql.NullString{String: "https://cdn.example.com/a.png", Valid: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, ok := c.GetUser(ctx, "alice")
	require.False(t, ok)

	c.PutUser(ctx, user)

	raw, err := mr.Get("user:alice")
	require.NoError(t, err)
	assert.NotContains(t, raw, "secret-hash")
	assert.Equal(t, 15*time.Minute, mr.TTL("user:alice"))

	cached, ok := c.GetUser(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, user.ID, cached.ID)
	assert.Equal(t, user.Email, cached.Email)
	assert.Equal(t, entity.RoleAdmin, cached.Role)
	assert.True(t, cached.Confirmed)
	assert.Equal(t, user.Avatar, cached.Avatar)
	assert.Empty(t, cached.PasswordHash)

	c.EvictUser(ctx, "alice")
	_, ok = c.GetUser(ctx, "alice")
	assert.False(t, ok)
}

func TestCache_UndecodableUserIsAMiss(t *testing.T) {
	c, mr := newCache(t)

	require.NoError(t, mr.Set("user:bob", "{not json"))

	_, ok := c.GetUser(context.Background(), "bob")
	assert.False(t, ok)
}

func TestCache_OutageDegradesToMiss(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	c.PutUser(ctx, &entity.User{ID: 1, Username: "carol", Role: entity.RoleRegular})
	mr.Close()

	assert.False(t, c.IsRevoked(ctx, "any-token"))
	_, ok := c.GetUser(ctx, "carol")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		c.Revoke(ctx, "any-token", time.Now().Add(time.Minute))
		c.PutUser(ctx, &entity.User{ID: 1, Username: "carol"})
		c.EvictUser(ctx, "carol")
	})
	assert.Error(t, c.Ping(ctx))
}

// silentServer accepts connections and never answers them.
func silentServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	return ln.Addr().String()
}

func TestCache_UnresponsiveRedisIsBoundedByTimeout(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := cache.NewClient(silentServer(t), "", 0, timeout)
	t.Cleanup(func() { _ = client.Close() })

	c := cache.New(client, time.Minute, timeout)
	ctx := context.Background()

	start := time.Now()
	assert.False(t, c.IsRevoked(ctx, "any-token"))
	assert.Less(t, int64(time.Since(start)), int64(500*time.Millisecond))

	start = time.Now()
	_, ok := c.GetUser(ctx, "carol")
	assert.False(t, ok)
	assert.Less(t, int64(time.Since(start)), int64(500*time.Millisecond))

	start = time.Now()
	assert.True(t, c.Claim(ctx, "reset-token", time.Now().Add(time.Minute)))
	assert.Less(t, int64(time.Since(start)), int64(500*time.Millisecond))

	start = time.Now()
	assert.Error(t, c.Ping(ctx))
	assert.Less(t, int64(time.Since(start)), int64(500*time.Millisecond))
}
