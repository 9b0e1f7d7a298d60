package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	RateLimit    RateLimitConfig
	Redis        RedisConfig
	Notification NotificationConfig
	SMTP         SMTPConfig
	AMQP         AMQPConfig
	Twilio       TwilioConfig
	CORS         CORSConfig
	Fallback     FallbackConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name        string
	CompanyName string
	SiteURL     string
	Port        string
	Host        string
	LogLevel    string
	Debug       bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
	// DedupWindow rejects a submission identical to one stored this recently; 0 disables.
	DedupWindow time.Duration
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	Backend        string // "memory" or "redis"
	Limit          int
	Window         time.Duration
	MaxEntries     int
	TrustedProxies int
	SweepEvery     time.Duration
}

// RedisConfig holds the shared rate-limit store connection
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NotificationConfig holds provider chains and delivery bounds
type NotificationConfig struct {
	Enabled           bool
	TeamEmails        []string
	TeamPhone         string
	TeamProviders     []string
	CustomerProviders []string
	SendTimeout       time.Duration
	SendRate          float64 // sends per second across all providers
	SendBurst         int
}

// SMTPConfig holds SMTP provider configuration
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// AMQPConfig holds the mail queue provider configuration
type AMQPConfig struct {
	URL   string
	Queue string
}

// TwilioConfig holds SMS provider configuration
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// FallbackConfig is the human contact returned when a submission cannot be recorded
type FallbackConfig struct {
	Phone   string
	Email   string
	Message string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Solar Leads API"),
			CompanyName: getEnv("COMPANY_NAME", "SunPeak Solar"),
			SiteURL:     getEnv("SITE_URL", "https://example.com"),
			Port:        getEnv("PORT", "8080"),
			Host:        getEnv("HOST", "0.0.0.0"),
			LogLevel:    getEnv("LOG_LEVEL", "INFO"),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", "sqlite:///./leads.db"),
			DedupWindow: getEnvAsDuration("DEDUP_WINDOW", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Backend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			Limit:          getEnvAsInt("RATE_LIMIT_MAX", 5),
			Window:         getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxEntries:     getEnvAsInt("RATE_LIMIT_MAX_ENTRIES", 10000),
			TrustedProxies: getEnvAsInt("TRUSTED_PROXY_COUNT", 0),
			SweepEvery:     getEnvAsDuration("RATE_LIMIT_SWEEP_EVERY", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ratelimit:contact"),
		},
		Notification: NotificationConfig{
			Enabled:           getEnvAsBool("EMAIL_ENABLED", false),
			TeamEmails:        getEnvAsSlice("TEAM_EMAILS", []string{"sales@example.com"}),
			TeamPhone:         getEnv("TEAM_PHONE", ""),
			TeamProviders:     getEnvAsSlice("TEAM_PROVIDERS", []string{"smtp", "queue", "twilio"}),
			CustomerProviders: getEnvAsSlice("CUSTOMER_PROVIDERS", []string{"smtp", "queue"}),
			SendTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			SendRate:          getEnvAsFloat("NOTIFY_RATE", 5),
			SendBurst:         getEnvAsInt("NOTIFY_BURST", 10),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@example.com"),
			FromName:  getEnv("EMAIL_FROM_NAME", "SunPeak Solar"),
		},
		AMQP: AMQPConfig{
			URL:   getEnv("AMQP_URL", ""),
			Queue: getEnv("AMQP_QUEUE", "outbound_email"),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			From:       getEnv("TWILIO_PHONE_NUMBER", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
			MaxAge:         getEnvAsInt("CORS_MAX_AGE", 86400),
		},
		Fallback: FallbackConfig{
			Phone:   getEnv("FALLBACK_PHONE", "+91-00000-00000"),
			Email:   getEnv("FALLBACK_EMAIL", "info@example.com"),
			Message: getEnv("FALLBACK_MESSAGE", "Please call or email us directly and we will help you right away."),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.App.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RateLimit.Limit <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be greater than 0")
	}
	if cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be greater than 0")
	}
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND: %s", cfg.RateLimit.Backend)
	}
	if cfg.Notification.SendTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be greater than 0")
	}
	if cfg.Fallback.Phone == "" && cfg.Fallback.Email == "" {
		return fmt.Errorf("FALLBACK_PHONE or FALLBACK_EMAIL must be set")
	}
	return nil
}

// Addr returns the listen address
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
