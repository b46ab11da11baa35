package services

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/config"
)

func testSettingsConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.FrontendURL = "http://localhost:3000"
	cfg.Server.BackendURL = "http://localhost:8000"
	cfg.Server.AllowedHosts = []string{"localhost"}
	cfg.Payment.Sandbox = true
	cfg.Cache.TTL = 15 * time.Minute
	cfg.Cache.Prefix = "cache:"
	return cfg
}

func settingsRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"key", "value"}).
		AddRow("maintenance_mode", "false").
		AddRow("site_name", "HomeSer")
}

func TestSettingsService_PublicConfig(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewSettingsService(mockDB, nil, testSettingsConfig(), testLogger())
	mockDB.ExpectQuery("SELECT key, value").WillReturnRows(settingsRows())

	pc, err := svc.PublicConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", pc.FrontendURL)
	assert.True(t, pc.SSLCommerzSandbox)
	assert.Equal(t, 900, pc.CacheTTL)
	assert.Equal(t, 20, pc.PageSize)
	assert.Equal(t, "HomeSer", pc.Site["site_name"])
}

func TestSettingsService_Update(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewSettingsService(mockDB, nil, testSettingsConfig(), testLogger())

	t.Run("upserts in key order", func(t *testing.T) {
		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO site_settings").
			WithArgs("maintenance_mode", "true").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectExec("INSERT INTO site_settings").
			WithArgs("site_name", "HomeSer BD").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockDB.ExpectCommit()
		mockDB.ExpectQuery("SELECT key, value").
			WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
				AddRow("maintenance_mode", "true").
				AddRow("site_name", "HomeSer BD"))

		out, err := svc.Update(context.Background(), map[string]string{
			"site_name":        "HomeSer BD",
			"maintenance_mode": "true",
		})
		require.NoError(t, err)
		assert.Equal(t, "true", out["maintenance_mode"])
		assert.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := svc.Update(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Update(context.Background(), map[string]string{" ": "x"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestSettingsService_ClearCache(t *testing.T) {
	client, mr := newTestRedis(t)
	require.NoError(t, mr.Set("cache:/api/services", "{}"))
	require.NoError(t, mr.Set("cache:/api/categories", "[]"))
	require.NoError(t, mr.Set("cart:7", "{}"))

	svc := NewSettingsService(nil, NewResponseCacheStore(client, "cache:", testLogger()), testSettingsConfig(), testLogger())

	n, err := svc.ClearCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("cache:/api/services"))
	assert.True(t, mr.Exists("cart:7"))
}
