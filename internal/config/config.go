/**
 * @description
 * This package handles the configuration management for the wallet service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), providing a centralized way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`

	// Settlement delays. Defaults are 10s for deposits and 15s for
	// withdrawals; whatever is configured, withdrawals must settle slower
	// than deposits.
	DepositSettlementDelaySeconds    int `mapstructure:"DEPOSIT_SETTLEMENT_DELAY_SECONDS"`
	WithdrawalSettlementDelaySeconds int `mapstructure:"WITHDRAWAL_SETTLEMENT_DELAY_SECONDS"`

	// Card issuance verification window, measured from submission.
	CardVerificationWindowSeconds int `mapstructure:"CARD_VERIFICATION_WINDOW_SECONDS"`

	// Worker schedules (robfig/cron specs, @every supported).
	SettlementPollSchedule string `mapstructure:"SETTLEMENT_POLL_SCHEDULE"`
	CardVerifyPollSchedule string `mapstructure:"CARD_VERIFY_POLL_SCHEDULE"`
	SettlementBatchSize    int    `mapstructure:"SETTLEMENT_BATCH_SIZE"`

	// Per-account submission rate limit for deposits/withdrawals. Zero
	// disables rate limiting.
	WalletOpRateLimitPerMinute int `mapstructure:"WALLET_OP_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DEPOSIT_SETTLEMENT_DELAY_SECONDS", 10)
	viper.SetDefault("WITHDRAWAL_SETTLEMENT_DELAY_SECONDS", 15)
	viper.SetDefault("CARD_VERIFICATION_WINDOW_SECONDS", 120)
	viper.SetDefault("SETTLEMENT_POLL_SCHEDULE", "@every 2s")
	viper.SetDefault("CARD_VERIFY_POLL_SCHEDULE", "@every 10s")
	viper.SetDefault("SETTLEMENT_BATCH_SIZE", 50)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "wallet:rate_limit")
	viper.SetDefault("WALLET_OP_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("DEPOSIT_SETTLEMENT_DELAY_SECONDS")
	_ = viper.BindEnv("WITHDRAWAL_SETTLEMENT_DELAY_SECONDS")
	_ = viper.BindEnv("CARD_VERIFICATION_WINDOW_SECONDS")
	_ = viper.BindEnv("SETTLEMENT_POLL_SCHEDULE")
	_ = viper.BindEnv("CARD_VERIFY_POLL_SCHEDULE")
	_ = viper.BindEnv("SETTLEMENT_BATCH_SIZE")
	_ = viper.BindEnv("WALLET_OP_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.DepositSettlementDelaySeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive deposit settlement delay; using default\" value=%d", config.DepositSettlementDelaySeconds)
		config.DepositSettlementDelaySeconds = 10
	}
	if config.WithdrawalSettlementDelaySeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive withdrawal settlement delay; using default\" value=%d", config.WithdrawalSettlementDelaySeconds)
		config.WithdrawalSettlementDelaySeconds = 15
	}
	// Withdrawals must not settle faster than deposits.
	if config.WithdrawalSettlementDelaySeconds <= config.DepositSettlementDelaySeconds {
		log.Printf("level=warn component=config msg=\"withdrawal delay must exceed deposit delay; coercing\" deposit=%d withdrawal=%d",
			config.DepositSettlementDelaySeconds, config.WithdrawalSettlementDelaySeconds)
		config.WithdrawalSettlementDelaySeconds = config.DepositSettlementDelaySeconds + 5
	}
	if config.CardVerificationWindowSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive card verification window; using default\" value=%d", config.CardVerificationWindowSeconds)
		config.CardVerificationWindowSeconds = 120
	}
	if config.SettlementBatchSize <= 0 {
		config.SettlementBatchSize = 50
	}
	if config.WalletOpRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative wallet op rate limit; disabling\" value=%d", config.WalletOpRateLimitPerMinute)
		config.WalletOpRateLimitPerMinute = 0
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "wallet:rate_limit"
	}

	return
}
