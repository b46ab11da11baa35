package models

import "time"

type SiteSetting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type SettingsUpdateRequest struct {
	Settings map[string]string `json:"settings"`
}

// PublicConfig is served unauthenticated to the frontend.
type PublicConfig struct {
	FrontendURL       string            `json:"FRONTEND_URL"`
	BackendURL        string            `json:"BACKEND_URL"`
	Debug             bool              `json:"DEBUG"`
	AllowedHosts      []string          `json:"ALLOWED_HOSTS"`
	SSLCommerzSandbox bool              `json:"SSLCOMMERZ_IS_SANDBOX"`
	CacheTTL          int               `json:"CACHE_TTL"`
	PageSize          int               `json:"PAGE_SIZE"`
	Site              map[string]string `json:"site"`
}
