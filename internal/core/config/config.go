// Package config provides configuration management for qualify commands.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/solatis/qualify/internal/core/auth"
	"github.com/solatis/qualify/internal/qualifiers"
	"github.com/solatis/qualify/internal/resolver"
	"github.com/solatis/qualify/internal/types"
)

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Resolver ResolverConfig
	Auth     AuthConfig
	// System is the qualifier configuration; the built-in default system
	// when the config file has no system section.
	System *types.SystemConfig
}

// ServerConfig holds configuration for the gRPC resolution service.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	// MetricsPort serves /metrics over HTTP; 0 disables it.
	MetricsPort int
}

// StoreConfig holds the bundle store location.
type StoreConfig struct {
	URL string
}

// AuthConfig controls API key authentication of the resolution service.
type AuthConfig struct {
	Enabled bool
	// Secret is the hex HMAC secret for stored key hashes. Environment only.
	Secret string
}

// ResolverConfig holds default resolution options.
type ResolverConfig struct {
	PartialContextMatch bool
	AcceptDefaultScore  bool
	MaxCachedContexts   int
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
		},
		Resolver: ResolverConfig{
			MaxCachedContexts: resolver.DefaultMaxCachedContexts,
		},
		System: types.DefaultSystemConfig(),
	}
}

// ResolverOptions converts the resolver section to resolver options.
func (c *Config) ResolverOptions() []resolver.Option {
	return []resolver.Option{
		resolver.WithPartialContextMatch(c.Resolver.PartialContextMatch),
		resolver.WithAcceptDefaultScore(c.Resolver.AcceptDefaultScore),
		resolver.WithMaxCachedContexts(c.Resolver.MaxCachedContexts),
	}
}

// validateConfig checks port ranges, positive timeout, store scheme, the
// auth secret and the qualifier system.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port must be between 0 and 65535, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.MetricsPort != 0 && cfg.Server.MetricsPort == cfg.Server.Port {
		return fmt.Errorf("metrics_port must differ from port %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Resolver.MaxCachedContexts < 0 {
		return fmt.Errorf("max_cached_contexts must not be negative, got %d", cfg.Resolver.MaxCachedContexts)
	}
	if cfg.Store.URL != "" {
		u, err := url.Parse(cfg.Store.URL)
		if err != nil {
			return fmt.Errorf("invalid store url: %w", err)
		}
		if u.Scheme != "sqlite" && u.Scheme != "postgres" {
			return fmt.Errorf("unsupported store scheme: %s (expected sqlite or postgres)", u.Scheme)
		}
	}
	if cfg.Auth.Enabled {
		if _, err := auth.ParseSecret(cfg.Auth.Secret); err != nil {
			return fmt.Errorf("%s_AUTH_SECRET: %w", EnvPrefix, err)
		}
		if cfg.Store.URL == "" {
			return fmt.Errorf("auth requires a store url for api keys")
		}
	}
	if _, err := qualifiers.NewSystem(cfg.System); err != nil {
		return fmt.Errorf("system: %w", err)
	}
	return nil
}
