package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 60*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "/", cfg.Auth.Cookie.Path)
	assert.Equal(t, 5, cfg.Throttle.LoginAttempts.Rate)
	assert.Equal(t, time.Minute, cfg.Throttle.LoginAttempts.Window)
	assert.Equal(t, 10, cfg.Throttle.Registration.Rate)
	assert.Equal(t, "usage_metrics", cfg.Usage.StoreKey)
	assert.Equal(t, 300*time.Second, cfg.Usage.TTL)
	assert.Equal(t, 900000.0, cfg.Usage.Limits.VercelInvocations)
	assert.Equal(t, 9000.0, cfg.Usage.Limits.SupabaseMAU)
	assert.Equal(t, 240.0, cfg.Usage.Limits.RedisMemory)
	assert.Equal(t, 22.0, cfg.Usage.Limits.CloudinaryCredits)
	assert.Equal(t, 0.05, cfg.Payment.TaxRate)
	assert.Equal(t, "BDT", cfg.Payment.Currency)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTTL)
	assert.Equal(t, 5, cfg.Throttle.PasswordReset.Rate)
	assert.True(t, cfg.Compression.Enabled)
	assert.Equal(t, 1024, cfg.Compression.MinSize)
	assert.Equal(t, "homeser.users", cfg.Kafka.Topics.Users)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("THROTTLE_LOGIN_ATTEMPTS_RATE", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Throttle.LoginAttempts.Rate)
}

func TestLoad_TrustedProxiesFromEnv(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.0/8,192.168.1.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.1"}, cfg.Server.TrustedProxies)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func validConfig() Config {
	var c Config
	c.Auth.JWTSecret = "secret"
	c.Auth.AccessTTL = time.Hour
	c.Auth.RefreshTTL = 24 * time.Hour
	c.Auth.ResetTTL = time.Hour
	c.Auth.Cookie.SameSite = "Lax"
	c.Throttle.LoginAttempts = ThrottleRate{Rate: 5, Window: time.Minute}
	c.Throttle.Registration = ThrottleRate{Rate: 10, Window: time.Hour}
	c.Throttle.PasswordReset = ThrottleRate{Rate: 5, Window: time.Hour}
	c.Usage.TTL = 5 * time.Minute
	c.Usage.Limits = UsageLimits{
		VercelInvocations: 900000,
		SupabaseMAU:       9000,
		RedisMemory:       240,
		CloudinaryCredits: 22,
	}
	return c
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "zero usage limit",
			mutate:  func(c *Config) { c.Usage.Limits.RedisMemory = 0 },
			wantErr: "usage.limits",
		},
		{
			name:    "zero throttle rate",
			mutate:  func(c *Config) { c.Throttle.Registration.Rate = 0 },
			wantErr: "throttle.registration",
		},
		{
			name:    "samesite none without secure",
			mutate:  func(c *Config) { c.Auth.Cookie.SameSite = "None" },
			wantErr: "samesite=None",
		},
		{
			name:    "zero reset ttl",
			mutate:  func(c *Config) { c.Auth.ResetTTL = 0 },
			wantErr: "lifetimes",
		},
		{
			name:    "negative compression size",
			mutate:  func(c *Config) { c.Compression = CompressionConfig{Enabled: true, MinSize: -1} },
			wantErr: "compression.min_size",
		},
		{
			name:    "bad trusted proxy",
			mutate:  func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.1", "lb.internal"} },
			wantErr: "trusted_proxies",
		},
		{
			name:   "trusted proxy cidr",
			mutate: func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8"} },
		},
		{
			name: "samesite none with secure",
			mutate: func(c *Config) {
				c.Auth.Cookie.SameSite = "None"
				c.Auth.Cookie.Secure = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite(" none "))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(""))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite("bogus"))
}
