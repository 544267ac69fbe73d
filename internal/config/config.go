/**
 * @description
 * This file handles the configuration management for the
 * treasury-service. It uses the 'viper' library to load configuration
 * from environment variables, providing a centralized and consistent
 * way to manage application settings.
 */
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Wallet registry backing store. When DatabaseURL is set the
	// PostgreSQL registry is used; otherwise the file-backed registry
	// at WalletStorePath.
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	WalletStorePath string `mapstructure:"WALLET_STORE_PATH"`

	// Circle W3S API.
	CircleAPIBaseURL   string `mapstructure:"CIRCLE_API_BASE_URL"`
	CircleAPIKey       string `mapstructure:"CIRCLE_API_KEY"`
	CircleEntitySecret string `mapstructure:"CIRCLE_ENTITY_SECRET"`
	CircleWalletSetID  string `mapstructure:"CIRCLE_WALLET_SET_ID"`
	CircleUSDCTokenID  string `mapstructure:"CIRCLE_USDC_TOKEN_ID"`

	// Settlement address receiving tier-upgrade payments.
	AdminWalletAddress string `mapstructure:"ADMIN_WALLET_ADDRESS"`

	// Identity provider token verification.
	PrivyJWKSURL string `mapstructure:"PRIVY_JWKS_URL"`
	PrivyIssuer  string `mapstructure:"PRIVY_ISSUER"`

	// Optional infrastructure.
	RedisURL          string `mapstructure:"REDIS_URL"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`

	RateLimitRequests      int `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindowSeconds int `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("WALLET_STORE_PATH", "data/user_wallets.json")
	viper.SetDefault("CIRCLE_API_BASE_URL", "https://api.circle.com")
	viper.SetDefault("CIRCLE_USDC_TOKEN_ID", "USDC")
	viper.SetDefault("RATE_LIMIT_REQUESTS", 30)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"WALLET_STORE_PATH",
		"CIRCLE_API_BASE_URL",
		"CIRCLE_API_KEY",
		"CIRCLE_ENTITY_SECRET",
		"CIRCLE_WALLET_SET_ID",
		"CIRCLE_USDC_TOKEN_ID",
		"ADMIN_WALLET_ADDRESS",
		"PRIVY_JWKS_URL",
		"PRIVY_ISSUER",
		"REDIS_URL",
		"RABBITMQ_URL",
		"RECONCILE_SCHEDULE",
		"RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	for key, value := range map[string]string{
		"CIRCLE_API_KEY":       config.CircleAPIKey,
		"CIRCLE_ENTITY_SECRET": config.CircleEntitySecret,
		"CIRCLE_WALLET_SET_ID": config.CircleWalletSetID,
		"ADMIN_WALLET_ADDRESS": config.AdminWalletAddress,
		"PRIVY_JWKS_URL":       config.PrivyJWKSURL,
	} {
		if value == "" {
			return config, fmt.Errorf("required configuration %s is not set", key)
		}
	}

	return
}
