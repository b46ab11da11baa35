package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/config"
)

const (
	ScopeLoginAttempts = "login_attempts"
	ScopeRegistration  = "registration"
	ScopePasswordReset = "password_reset"
)

// ThrottleScope is a named fixed-window ceiling applied to POSTs whose path
// contains every keyword.
type ThrottleScope struct {
	Name         string
	Rate         int
	Window       time.Duration
	PathKeywords []string
}

// Applies reports whether a request is subject to this scope. Only POSTs are throttled.
func (s ThrottleScope) Applies(method, path string) bool {
	if method != http.MethodPost {
		return false
	}
	for _, kw := range s.PathKeywords {
		if !strings.Contains(path, kw) {
			return false
		}
	}
	return len(s.PathKeywords) > 0
}

func ThrottleScopes(cfg config.ThrottleConfig) []ThrottleScope {
	return []ThrottleScope{
		{
			Name:         ScopeLoginAttempts,
			Rate:         cfg.LoginAttempts.Rate,
			Window:       cfg.LoginAttempts.Window,
			PathKeywords: []string{"auth", "login"},
		},
		{
			Name:         ScopeRegistration,
			Rate:         cfg.Registration.Rate,
			Window:       cfg.Registration.Window,
			PathKeywords: []string{"auth", "register"},
		},
		{
			Name:         ScopePasswordReset,
			Rate:         cfg.PasswordReset.Rate,
			Window:       cfg.PasswordReset.Window,
			PathKeywords: []string{"auth", "password-reset"},
		},
	}
}

type ThrottleDecision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

func (d ThrottleDecision) Remaining() int {
	if r := d.Limit - int(d.Count); r > 0 {
		return r
	}
	return 0
}

// fixedWindowScript refuses once the counter reaches ARGV[1], otherwise
// increments it and starts the window on the first hit.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, current, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, current, redis.call('PTTL', KEYS[1])}
`)

// RateLimiter keeps per-scope, per-client attempt counters in Redis.
type RateLimiter struct {
	redisClient redis.UniversalClient
	logger      *logrus.Logger
}

func NewRateLimiter(redisClient redis.UniversalClient, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
	}
}

func throttleKey(scope, client string) string {
	return fmt.Sprintf("throttle:%s:%s", scope, client)
}

// Allow consults and, when permitted, increments the counter for (scope, client).
// Store errors are returned; the caller decides whether to fail open.
func (rl *RateLimiter) Allow(ctx context.Context, scope ThrottleScope, client string) (ThrottleDecision, error) {
	if scope.Rate <= 0 || scope.Window <= 0 {
		return ThrottleDecision{}, fmt.Errorf("%w: scope %s has no ceiling", ErrInvalidInput, scope.Name)
	}

	res, err := fixedWindowScript.Run(ctx, rl.redisClient,
		[]string{throttleKey(scope.Name, client)},
		scope.Rate, scope.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return ThrottleDecision{}, fmt.Errorf("throttle %s: %w", scope.Name, err)
	}
	if len(res) != 3 {
		return ThrottleDecision{}, fmt.Errorf("throttle %s: unexpected script reply %v", scope.Name, res)
	}

	decision := ThrottleDecision{
		Allowed: res[0] == 1,
		Count:   res[1],
		Limit:   scope.Rate,
	}
	if res[2] > 0 {
		decision.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return decision, nil
}
