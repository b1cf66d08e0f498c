package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator"

	"github.com/ceramicnetwork/go-registry"
	"github.com/ceramicnetwork/go-registry/models"
)

type Config struct {
	LedgerRpcUrl         string        `validate:"required"`
	LedgerSignerKey      string        `validate:"required,hexadecimal"`
	GatewayUrl           string        `validate:"required,url"`
	IpfsApiMultiaddr     string        `validate:"omitempty"`
	CreditsUrl           string        `validate:"required,url"`
	CacheTtl             time.Duration `validate:"gt=0"`
	CacheRefreshInterval time.Duration `validate:"gt=0"`
	CacheSize            int           `validate:"gt=0"`
	SnapshotDbPath       string        `validate:"omitempty"`
	UploadConcurrency    int           `validate:"gt=0"`
	PendingStaleAfter    time.Duration `validate:"gt=0"`
}

// Load reads the configuration from the environment, falling back to defaults for optional settings.
func Load() (*Config, error) {
	cfg := &Config{
		LedgerRpcUrl:         os.Getenv(registry.Env_LedgerRpcUrl),
		LedgerSignerKey:      os.Getenv(registry.Env_LedgerSignerKey),
		GatewayUrl:           os.Getenv(registry.Env_GatewayUrl),
		IpfsApiMultiaddr:     os.Getenv(registry.Env_IpfsApiMultiaddr),
		CreditsUrl:           os.Getenv(registry.Env_CreditsUrl),
		CacheTtl:             models.DefaultCacheTtl,
		CacheRefreshInterval: models.DefaultCacheRefreshInterval,
		CacheSize:            models.DefaultCacheSize,
		SnapshotDbPath:       os.Getenv(registry.Env_SnapshotDbPath),
		UploadConcurrency:    models.DefaultUploadConcurrency,
		PendingStaleAfter:    models.DefaultPendingStaleAfter,
	}
	var err error
	if cfg.CacheTtl, err = durationFromEnv(registry.Env_CacheTtl, cfg.CacheTtl); err != nil {
		return nil, err
	}
	if cfg.CacheRefreshInterval, err = durationFromEnv(registry.Env_CacheRefreshInterval, cfg.CacheRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.PendingStaleAfter, err = durationFromEnv(registry.Env_PendingStaleAfter, cfg.PendingStaleAfter); err != nil {
		return nil, err
	}
	if cfg.CacheSize, err = intFromEnv(registry.Env_CacheSize, cfg.CacheSize); err != nil {
		return nil, err
	}
	if cfg.UploadConcurrency, err = intFromEnv(registry.Env_UploadConcurrency, cfg.UploadConcurrency); err != nil {
		return nil, err
	}
	if err = validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func durationFromEnv(name string, def time.Duration) (time.Duration, error) {
	if configValue, found := os.LookupEnv(name); found && len(configValue) > 0 {
		parsedValue, err := time.ParseDuration(configValue)
		if err != nil {
			return 0, fmt.Errorf("config: invalid %s %q: %w", name, configValue, err)
		}
		return parsedValue, nil
	}
	return def, nil
}

func intFromEnv(name string, def int) (int, error) {
	if configValue, found := os.LookupEnv(name); found && len(configValue) > 0 {
		parsedValue, err := strconv.Atoi(configValue)
		if err != nil {
			return 0, fmt.Errorf("config: invalid %s %q: %w", name, configValue, err)
		}
		return parsedValue, nil
	}
	return def, nil
}
