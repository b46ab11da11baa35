package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/config"
	"github.com/temcen/homeser/pkg/models"
)

const maxSettingKeyLength = 100

type SettingsService struct {
	db     DB
	cache  *ResponseCacheStore
	cfg    *config.Config
	logger *logrus.Logger
}

func NewSettingsService(db DB, cache *ResponseCacheStore, cfg *config.Config, logger *logrus.Logger) *SettingsService {
	return &SettingsService{db: db, cache: cache, cfg: cfg, logger: logger}
}

// Get returns every site setting as text.
func (s *SettingsService) Get(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value #>> '{}' FROM site_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsService) Update(ctx context.Context, settings map[string]string) (map[string]string, error) {
	if len(settings) == 0 {
		return nil, fmt.Errorf("%w: no settings given", ErrInvalidInput)
	}
	keys := slices.Sorted(maps.Keys(settings))
	for _, key := range keys {
		if strings.TrimSpace(key) == "" || len(key) > maxSettingKeyLength {
			return nil, fmt.Errorf("%w: invalid setting key %q", ErrInvalidInput, key)
		}
	}

	err := withTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `
				INSERT INTO site_settings (key, value, updated_at)
				VALUES ($1, to_jsonb($2::text), NOW())
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				key, settings[key]); err != nil {
				return fmt.Errorf("failed to save setting %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithField("keys", keys).Info("Site settings updated")
	return s.Get(ctx)
}

func (s *SettingsService) PublicConfig(ctx context.Context) (*models.PublicConfig, error) {
	site, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &models.PublicConfig{
		FrontendURL:       s.cfg.Server.FrontendURL,
		BackendURL:        s.cfg.Server.BackendURL,
		Debug:             s.cfg.Server.Debug,
		AllowedHosts:      s.cfg.Server.AllowedHosts,
		SSLCommerzSandbox: s.cfg.Payment.Sandbox,
		CacheTTL:          int(s.cfg.Cache.TTL.Seconds()),
		PageSize:          models.DefaultPageSize,
		Site:              site,
	}, nil
}

// ClearCache deletes every response cache entry and reports how many went.
func (s *SettingsService) ClearCache(ctx context.Context) (int, error) {
	deleted, err := s.cache.Clear(ctx, "")
	if err != nil {
		return deleted, err
	}
	s.logger.WithField("deleted", deleted).Info("Response cache cleared")
	return deleted, nil
}
