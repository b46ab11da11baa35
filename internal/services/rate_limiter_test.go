package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestThrottleScope_Applies(t *testing.T) {
	scopes := ThrottleScopes(config.ThrottleConfig{
		LoginAttempts: config.ThrottleRate{Rate: 5, Window: time.Minute},
		Registration:  config.ThrottleRate{Rate: 10, Window: time.Hour},
		PasswordReset: config.ThrottleRate{Rate: 5, Window: time.Hour},
	})
	require.Len(t, scopes, 3)
	login, register, reset := scopes[0], scopes[1], scopes[2]

	tests := []struct {
		name   string
		scope  ThrottleScope
		method string
		path   string
		want   bool
	}{
		{"login post", login, "POST", "/api/auth/login", true},
		{"login get", login, "GET", "/api/auth/login", false},
		{"login scope on register path", login, "POST", "/api/auth/register", false},
		{"login scope on refresh path", login, "POST", "/api/auth/token/refresh", false},
		{"register post", register, "POST", "/api/auth/register", true},
		{"register put", register, "PUT", "/api/auth/register", false},
		{"unrelated post", register, "POST", "/api/cart/add", false},
		{"reset request", reset, "POST", "/api/auth/password-reset/", true},
		{"reset confirm", reset, "POST", "/api/auth/password-reset/confirm/", true},
		{"reset scope on login", reset, "POST", "/api/auth/login", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scope.Applies(tt.method, tt.path))
		})
	}
}

func TestRateLimiter_CeilingAndWindow(t *testing.T) {
	client, mr := newTestRedis(t)
	rl := NewRateLimiter(client, testLogger())
	ctx := context.Background()
	scope := ThrottleScope{Name: ScopeLoginAttempts, Rate: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		d, err := rl.Allow(ctx, scope, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
		assert.Equal(t, int64(i), d.Count)
		assert.Equal(t, 3-i, d.Remaining())
	}

	d, err := rl.Allow(ctx, scope, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(3), d.Count, "denied attempts do not grow the counter")
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// Another client has its own counter.
	d, err = rl.Allow(ctx, scope, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(61 * time.Second)
	d, err = rl.Allow(ctx, scope, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestRateLimiter_StoreDown(t *testing.T) {
	client, mr := newTestRedis(t)
	rl := NewRateLimiter(client, testLogger())
	mr.Close()

	_, err := rl.Allow(context.Background(), ThrottleScope{Name: "x", Rate: 1, Window: time.Second}, "c")
	assert.Error(t, err)
}

func TestRateLimiter_InvalidScope(t *testing.T) {
	client, _ := newTestRedis(t)
	rl := NewRateLimiter(client, testLogger())

	_, err := rl.Allow(context.Background(), ThrottleScope{Name: "x"}, "c")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
