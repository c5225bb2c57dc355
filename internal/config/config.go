/**
 * @description
 * This package handles configuration for the marketplace service. It uses
 * Viper to read environment variables (with an optional .env file for local
 * development), binds every fee and threshold the payment flow consumes, and
 * coerces invalid values back to documented defaults instead of crashing.
 *
 * @dependencies
 * - github.com/spf13/viper: Application configuration.
 */

package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// FeeTierConfig is one homeowner platform fee band as configured.
type FeeTierConfig struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
	FeeCents int64 `json:"fee_cents"`
}

// Config holds all the configuration variables for the marketplace service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	JWKSURL        string `mapstructure:"JWKS_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	StripeAPIBaseURL string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey  string `mapstructure:"STRIPE_SECRET_KEY"`

	// Payment rules
	DisputeWindowHours           int     `mapstructure:"DISPUTE_WINDOW_HOURS"`
	ChangeOrderThresholdPercent  float64 `mapstructure:"CHANGE_ORDER_THRESHOLD_PERCENTAGE"`
	AuthorizationBufferPercent   float64 `mapstructure:"AUTHORIZATION_BUFFER_PERCENTAGE"`
	AuthorizationBufferCapCents  int64   `mapstructure:"AUTHORIZATION_BUFFER_CAP_CENTS"`
	ProviderFeePercent           float64 `mapstructure:"PROVIDER_FEE_PERCENTAGE"`
	ProviderFeeMinimumCents      int64   `mapstructure:"PROVIDER_FEE_MINIMUM_CENTS"`
	HomeownerDefaultFeeCents     int64   `mapstructure:"HOMEOWNER_DEFAULT_FEE_CENTS"`
	DiagnosticFallbackFeeCents   int64   `mapstructure:"DIAGNOSTIC_FALLBACK_FEE_CENTS"`
	HomeownerFeeTiersJSON        string  `mapstructure:"HOMEOWNER_FEE_TIERS"`
	DiagnosticFeesJSON           string  `mapstructure:"DIAGNOSTIC_FEES"`

	// Maintenance rules
	DueSoonDays int `mapstructure:"DUE_SOON_DAYS"`

	// Rate limiting
	RedisRateLimitPrefix        string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	PaymentRateLimitPerMinute   int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`

	// Cron schedules
	ChangeOrderExpirySchedule string `mapstructure:"CHANGE_ORDER_EXPIRY_SCHEDULE"`
	EstimateExpirySchedule    string `mapstructure:"ESTIMATE_EXPIRY_SCHEDULE"`
	TaskReminderSchedule      string `mapstructure:"TASK_REMINDER_SCHEDULE"`

	// Parsed forms, populated by LoadConfig.
	HomeownerFeeTiers []FeeTierConfig  `mapstructure:"-"`
	DiagnosticFees    map[string]int64 `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "upkeep:rate_limit")
	viper.SetDefault("DISPUTE_WINDOW_HOURS", 72)
	viper.SetDefault("CHANGE_ORDER_THRESHOLD_PERCENTAGE", 10.0)
	viper.SetDefault("AUTHORIZATION_BUFFER_PERCENTAGE", 10.0)
	viper.SetDefault("AUTHORIZATION_BUFFER_CAP_CENTS", 50000)
	viper.SetDefault("PROVIDER_FEE_PERCENTAGE", 8.0)
	viper.SetDefault("PROVIDER_FEE_MINIMUM_CENTS", 500)
	viper.SetDefault("HOMEOWNER_DEFAULT_FEE_CENTS", 1500)
	viper.SetDefault("DIAGNOSTIC_FALLBACK_FEE_CENTS", 7500)
	viper.SetDefault("DUE_SOON_DAYS", 7)
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CHANGE_ORDER_EXPIRY_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("ESTIMATE_EXPIRY_SCHEDULE", "0 * * * *")
	viper.SetDefault("TASK_REMINDER_SCHEDULE", "0 13 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("DISPUTE_WINDOW_HOURS")
	_ = viper.BindEnv("CHANGE_ORDER_THRESHOLD_PERCENTAGE")
	_ = viper.BindEnv("AUTHORIZATION_BUFFER_PERCENTAGE")
	_ = viper.BindEnv("AUTHORIZATION_BUFFER_CAP_CENTS")
	_ = viper.BindEnv("PROVIDER_FEE_PERCENTAGE")
	_ = viper.BindEnv("PROVIDER_FEE_MINIMUM_CENTS")
	_ = viper.BindEnv("HOMEOWNER_DEFAULT_FEE_CENTS")
	_ = viper.BindEnv("DIAGNOSTIC_FALLBACK_FEE_CENTS")
	_ = viper.BindEnv("HOMEOWNER_FEE_TIERS")
	_ = viper.BindEnv("DIAGNOSTIC_FEES")
	_ = viper.BindEnv("DUE_SOON_DAYS")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CHANGE_ORDER_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("ESTIMATE_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("TASK_REMINDER_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "upkeep:rate_limit"
	}

	if config.DisputeWindowHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive dispute window configured; using default\" hours=%d", config.DisputeWindowHours)
		config.DisputeWindowHours = 72
	}
	if config.ChangeOrderThresholdPercent <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive change order threshold configured; using default\" percent=%f", config.ChangeOrderThresholdPercent)
		config.ChangeOrderThresholdPercent = 10.0
	}
	if config.AuthorizationBufferPercent < 0 {
		log.Printf("level=warn component=config msg=\"negative buffer percent configured; coercing to zero\" percent=%f", config.AuthorizationBufferPercent)
		config.AuthorizationBufferPercent = 0
	}
	if config.AuthorizationBufferPercent > 100 {
		log.Printf("level=warn component=config msg=\"buffer percent too high; capping at 100\" percent=%f", config.AuthorizationBufferPercent)
		config.AuthorizationBufferPercent = 100
	}
	if config.ProviderFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative provider fee percent configured; coercing to zero\" percent=%f", config.ProviderFeePercent)
		config.ProviderFeePercent = 0
	}
	if config.DueSoonDays <= 0 {
		config.DueSoonDays = 7
	}
	if config.PaymentRateLimitPerMinute < 0 {
		config.PaymentRateLimitPerMinute = 0
	}

	config.HomeownerFeeTiers = parseFeeTiers(config.HomeownerFeeTiersJSON)
	config.DiagnosticFees = parseDiagnosticFees(config.DiagnosticFeesJSON)

	return
}

// parseFeeTiers decodes the HOMEOWNER_FEE_TIERS JSON env. Malformed input
// logs a warning and falls back to no tiers (the default fee applies).
func parseFeeTiers(raw string) []FeeTierConfig {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tiers []FeeTierConfig
	if err := json.Unmarshal([]byte(raw), &tiers); err != nil {
		log.Printf("level=warn component=config msg=\"invalid HOMEOWNER_FEE_TIERS; ignoring\" err=%v", err)
		return nil
	}
	return tiers
}

// parseDiagnosticFees decodes the DIAGNOSTIC_FEES JSON env, a map of service
// category to fee in cents.
func parseDiagnosticFees(raw string) map[string]int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var fees map[string]int64
	if err := json.Unmarshal([]byte(raw), &fees); err != nil {
		log.Printf("level=warn component=config msg=\"invalid DIAGNOSTIC_FEES; ignoring\" err=%v", err)
		return nil
	}
	return fees
}
