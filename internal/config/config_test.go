package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CIRCLE_API_KEY", "test-api-key")
	t.Setenv("CIRCLE_ENTITY_SECRET", "test-entity-secret")
	t.Setenv("CIRCLE_WALLET_SET_ID", "test-wallet-set")
	t.Setenv("ADMIN_WALLET_ADDRESS", "0xCD4c2FCB8af53d5DCcC95eD0230985431E3D2289")
	t.Setenv("PRIVY_JWKS_URL", "https://auth.example.com/jwks.json")
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default server port 8080, got %q", cfg.ServerPort)
	}
	if cfg.WalletStorePath != "data/user_wallets.json" {
		t.Errorf("expected default wallet store path, got %q", cfg.WalletStorePath)
	}
	if cfg.CircleAPIBaseURL != "https://api.circle.com" {
		t.Errorf("expected default Circle base URL, got %q", cfg.CircleAPIBaseURL)
	}
	if cfg.RateLimitRequests != 30 {
		t.Errorf("expected default rate limit of 30 requests, got %d", cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindowSeconds != 60 {
		t.Errorf("expected default rate limit window of 60s, got %d", cfg.RateLimitWindowSeconds)
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/treasury")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected server port 9090, got %q", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/treasury" {
		t.Errorf("unexpected database URL %q", cfg.DatabaseURL)
	}
	if cfg.RateLimitRequests != 10 {
		t.Errorf("expected rate limit of 10 requests, got %d", cfg.RateLimitRequests)
	}
	if cfg.CircleAPIKey != "test-api-key" {
		t.Errorf("unexpected Circle API key %q", cfg.CircleAPIKey)
	}
}

func TestLoadConfigMissingRequiredKey(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)
	t.Setenv("CIRCLE_API_KEY", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error when CIRCLE_API_KEY is unset")
	}
	if !strings.Contains(err.Error(), "CIRCLE_API_KEY") {
		t.Errorf("error should name the missing key, got: %v", err)
	}
}
