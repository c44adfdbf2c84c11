package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qualify.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
		}
		if cfg.Server.Port != 50051 {
			t.Errorf("expected port 50051, got %d", cfg.Server.Port)
		}
		if cfg.Server.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.Server.RequestTimeout)
		}
		if cfg.Resolver.MaxCachedContexts != 4096 {
			t.Errorf("expected max_cached_contexts 4096, got %d", cfg.Resolver.MaxCachedContexts)
		}
		if cfg.System == nil || cfg.System.Name != "default" {
			t.Errorf("expected default system, got %+v", cfg.System)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("QUALIFY_SERVER_PORT", "9999")
		t.Setenv("QUALIFY_SERVER_HOST", "127.0.0.1")
		t.Setenv("QUALIFY_RESOLVER_PARTIAL_CONTEXT_MATCH", "true")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Server.Port)
		}
		if cfg.Server.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
		}
		if !cfg.Resolver.PartialContextMatch {
			t.Error("expected partial_context_match true")
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("QUALIFY_SERVER_PORT", "8080")
		path := writeConfig(t, "server:\n  port: 9090\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := []struct {
			env, value string
		}{
			{"QUALIFY_SERVER_PORT", "70000"},
			{"QUALIFY_SERVER_METRICS_PORT", "-1"},
			{"QUALIFY_SERVER_REQUEST_TIMEOUT", "0s"},
			{"QUALIFY_RESOLVER_MAX_CACHED_CONTEXTS", "-5"},
			{"QUALIFY_STORE_URL", "mysql://localhost/db"},
		}
		for _, tt := range tests {
			t.Run(tt.env, func(t *testing.T) {
				t.Setenv(tt.env, tt.value)
				if _, err := LoadConfig(""); err == nil {
					t.Errorf("expected error for %s=%s", tt.env, tt.value)
				}
			})
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestLoadConfig_System(t *testing.T) {
	path := writeConfig(t, `
system:
  name: shop
  qualifierTypes:
    - name: language
      systemType: language
    - name: channel
      systemType: literal
      enumeratedValues: [web, app]
  qualifiers:
    - name: language
      type: language
      defaultPriority: 600
      tokenIsOptional: true
    - name: channel
      type: channel
      defaultPriority: 200
  resourceTypes:
    - name: json
      systemType: json
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.System.Name != "shop" || len(cfg.System.Qualifiers) != 2 {
		t.Fatalf("System = %+v, want shop with 2 qualifiers", cfg.System)
	}
	if q := cfg.System.Qualifiers[1]; q.Name != "channel" || q.DefaultPriority != 200 {
		t.Errorf("second qualifier = %+v", q)
	}
	if !cfg.System.Qualifiers[0].TokenIsOptional {
		t.Error("tokenIsOptional lost in decoding")
	}
	if got := cfg.System.QualifierTypes[1].EnumeratedValues; len(got) != 2 {
		t.Errorf("enumeratedValues = %v, want 2 values", got)
	}
}

func TestLoadConfig_InvalidSystem(t *testing.T) {
	path := writeConfig(t, `
system:
  name: broken
  qualifiers:
    - name: language
      type: missing
      defaultPriority: 1
`)
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for qualifier with undeclared type")
	}
}

func TestLoadConfig_RejectsStorePassword(t *testing.T) {
	path := writeConfig(t, "store:\n  url: postgres://qualify:hunter2@db/qualify\n")
	if _, err := LoadConfig(path); !errors.Is(err, ErrSecretInConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrSecretInConfig", err)
	}

	// The same url from the environment is accepted.
	t.Setenv("QUALIFY_STORE_URL", "postgres://qualify:hunter2@db/qualify")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if cfg.Store.URL == "" {
		t.Error("store url from environment not loaded")
	}
}

func TestLoadConfig_Auth(t *testing.T) {
	secret := strings.Repeat("ab", 32)

	path := writeConfig(t, "auth:\n  secret: "+secret+"\n")
	if _, err := LoadConfig(path); !errors.Is(err, ErrSecretInConfig) {
		t.Errorf("LoadConfig(secret in file) error = %v, want ErrSecretInConfig", err)
	}

	t.Setenv("QUALIFY_AUTH_ENABLED", "true")
	if _, err := LoadConfig(""); err == nil {
		t.Errorf("LoadConfig(enabled without secret) error = nil, want error")
	}

	t.Setenv("QUALIFY_AUTH_SECRET", secret)
	if _, err := LoadConfig(""); err == nil {
		t.Errorf("LoadConfig(enabled without store) error = nil, want error")
	}

	t.Setenv("QUALIFY_STORE_URL", "sqlite://qualify.db")
	cfg, err := LoadConfig(writeConfig(t, "auth:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil", err)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Secret != secret {
		t.Errorf("Auth = %+v, want enabled with the env secret", cfg.Auth)
	}
}

func TestResolverOptions(t *testing.T) {
	cfg := Default()
	if got := len(cfg.ResolverOptions()); got != 3 {
		t.Errorf("len(ResolverOptions()) = %d, want 3", got)
	}
}
