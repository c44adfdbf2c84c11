package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/qualify/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. QUALIFY_SERVER_PORT.
const EnvPrefix = "QUALIFY"

// ErrSecretInConfig is returned when a config file embeds a store password
// or the auth secret.
var ErrSecretInConfig = fmt.Errorf("secrets not allowed in config files (use %s_STORE_URL and %s_AUTH_SECRET environment variables)", EnvPrefix, EnvPrefix)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

// LoadWith loads configuration into v, which may already carry bound flags.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	return load(v, configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	def := Default()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.metrics_port", def.Server.MetricsPort)
	v.SetDefault("store.url", "")
	v.SetDefault("resolver.partial_context_match", false)
	v.SetDefault("resolver.accept_default_score", false)
	v.SetDefault("resolver.max_cached_contexts", def.Resolver.MaxCachedContexts)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")

	// Bind environment variables with QUALIFY_ prefix
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials come from the environment only
	if err := validateNoSecretsInConfig(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MetricsPort:    v.GetInt("server.metrics_port"),
		},
		Store: StoreConfig{
			URL: v.GetString("store.url"),
		},
		Resolver: ResolverConfig{
			PartialContextMatch: v.GetBool("resolver.partial_context_match"),
			AcceptDefaultScore:  v.GetBool("resolver.accept_default_score"),
			MaxCachedContexts:   v.GetInt("resolver.max_cached_contexts"),
		},
		Auth: AuthConfig{
			Enabled: v.GetBool("auth.enabled"),
			Secret:  v.GetString("auth.secret"),
		},
		System: def.System,
	}

	// viper lowercases keys; mapstructure matches field tags case-insensitively
	if v.IsSet("system") {
		var sys types.SystemConfig
		if err := v.UnmarshalKey("system", &sys); err != nil {
			return nil, fmt.Errorf("failed to decode system: %w", err)
		}
		cfg.System = &sys
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateNoSecretsInConfig rejects an auth secret or a store url with a
// password in the config file.
// The file is read on its own so environment overrides do not mask it.
func validateNoSecretsInConfig(configPath string) error {
	if configPath == "" {
		return nil
	}
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if file.IsSet("auth.secret") {
		return ErrSecretInConfig
	}
	u, err := url.Parse(file.GetString("store.url"))
	if err != nil {
		return nil
	}
	if _, ok := u.User.Password(); ok {
		return ErrSecretInConfig
	}
	return nil
}
