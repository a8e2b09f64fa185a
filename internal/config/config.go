package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
	Reminder ReminderConfig
	Redis    RedisConfig

	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string

	// BaseURL is the absolute prefix for links embedded in outgoing emails.
	// The reminder worker refuses to run a tick without it.
	BaseURL string

	// TrustedProxies lists CIDR ranges allowed to assert X-Forwarded-For
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	ContactTo   string
}

type ReminderConfig struct {
	PollInterval  time.Duration
	GraceWindow   time.Duration
	RecoveryDelay time.Duration
	Timezone      string
}

type RedisConfig struct {
	// Addr switches the rate limiter to a shared Redis store when set
	Addr string
}

type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
	PublicPerMinute  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (got %d)", len(jwtSecret))
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "clubportal"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			BaseURL:        getEnv("BASE_URL", ""),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "eu-central-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
			ContactTo:   getEnv("CONTACT_EMAIL_TO", ""),
		},
		Reminder: ReminderConfig{
			PollInterval:  getEnvAsDuration("REMINDER_POLL_INTERVAL", 15*time.Minute),
			GraceWindow:   getEnvAsDuration("REMINDER_GRACE_WINDOW", 1*time.Hour),
			RecoveryDelay: getEnvAsDuration("REMINDER_RECOVERY_DELAY", 6*time.Hour),
			Timezone:      getEnv("REMINDER_TIMEZONE", "Europe/Berlin"),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: getEnvAsInt("RATE_LIMIT_LOGIN_MAX_ATTEMPTS", 0),
			LoginWindow:      getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 0),
			PublicPerMinute:  getEnvAsInt("RATE_LIMIT_PUBLIC_PER_MINUTE", 60),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}

	if _, err := time.LoadLocation(cfg.Reminder.Timezone); err != nil {
		return nil, fmt.Errorf("REMINDER_TIMEZONE %q is not a valid timezone: %w", cfg.Reminder.Timezone, err)
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
