package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	APIBaseURL    string
	GatewayURL    string
	DeviceCodeURL string
	TokenURL      string
	OAuthClientID string
	OAuthScope    string

	AccountsFile string
	StoreSecret  string

	ExportDir string

	UserCacheTTL   time.Duration
	UserCacheSize  int
	GlobalDataTTL  time.Duration
	StatusInterval time.Duration

	Version string
}

func Load() (*Config, error) {
	userCacheTTL, err := time.ParseDuration(getEnv("PALAVER_USER_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("PALAVER_USER_CACHE_TTL: %w", err)
	}
	globalDataTTL, err := time.ParseDuration(getEnv("PALAVER_GLOBAL_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("PALAVER_GLOBAL_TTL: %w", err)
	}
	statusInterval, err := time.ParseDuration(getEnv("PALAVER_STATUS_INTERVAL", "15s"))
	if err != nil {
		return nil, fmt.Errorf("PALAVER_STATUS_INTERVAL: %w", err)
	}
	userCacheSize := 400
	if v := os.Getenv("PALAVER_USER_CACHE_SIZE"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &userCacheSize); err != nil {
			return nil, fmt.Errorf("PALAVER_USER_CACHE_SIZE: %w", err)
		}
	}

	cfg := &Config{
		APIBaseURL:    getEnv("PALAVER_API_URL", "https://api.palaver.chat/v1"),
		GatewayURL:    getEnv("PALAVER_GATEWAY_URL", "wss://api.palaver.chat/v1/gateway"),
		DeviceCodeURL: getEnv("PALAVER_DEVICE_CODE_URL", "https://login.microsoftonline.com/consumers/oauth2/v2.0/devicecode"),
		TokenURL:      getEnv("PALAVER_TOKEN_URL", "https://login.microsoftonline.com/consumers/oauth2/v2.0/token"),
		OAuthClientID: os.Getenv("PALAVER_OAUTH_CLIENT_ID"),
		OAuthScope:    getEnv("PALAVER_OAUTH_SCOPE", "XboxLive.signin offline_access"),

		AccountsFile: getEnv("PALAVER_ACCOUNTS", "accounts.db"),
		StoreSecret:  os.Getenv("PALAVER_STORE_SECRET"),

		ExportDir: getEnv("PALAVER_EXPORT_DIR", "."),

		UserCacheTTL:   userCacheTTL,
		UserCacheSize:  userCacheSize,
		GlobalDataTTL:  globalDataTTL,
		StatusInterval: statusInterval,

		Version: getEnv("PALAVER_VERSION", "0.0.0+dev"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.StoreSecret == "" {
		return fmt.Errorf("PALAVER_STORE_SECRET is required")
	}

	if c.OAuthClientID == "" {
		return fmt.Errorf("PALAVER_OAUTH_CLIENT_ID is required")
	}

	if c.UserCacheSize <= 0 {
		return fmt.Errorf("PALAVER_USER_CACHE_SIZE must be greater than 0")
	}

	if c.UserCacheTTL <= 0 || c.GlobalDataTTL <= 0 || c.StatusInterval <= 0 {
		return fmt.Errorf("cache TTLs and the status interval must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
