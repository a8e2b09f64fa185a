package config_test

import (
	"testing"
	"time"

	"github.com/hanswolff/clubportal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DB_PASSWORD", "testpassword")
	t.Setenv("EMAIL_FROM", "noreply@club.example")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "clubportal", cfg.Database.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Reminder.PollInterval)
	assert.Equal(t, 1*time.Hour, cfg.Reminder.GraceWindow)
	assert.Equal(t, 6*time.Hour, cfg.Reminder.RecoveryDelay)
	assert.Equal(t, "Europe/Berlin", cfg.Reminder.Timezone)
	assert.Empty(t, cfg.Server.BaseURL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Nil(t, cfg.Server.TrustedProxies)
	assert.Equal(t, 60, cfg.RateLimit.PublicPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REMINDER_POLL_INTERVAL", "5m")
	t.Setenv("REMINDER_TIMEZONE", "America/New_York")
	t.Setenv("BASE_URL", "https://club.example")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1/32")
	t.Setenv("RATE_LIMIT_LOGIN_MAX_ATTEMPTS", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Reminder.PollInterval)
	assert.Equal(t, "America/New_York", cfg.Reminder.Timezone)
	assert.Equal(t, "https://club.example", cfg.Server.BaseURL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 8, cfg.RateLimit.LoginMaxAttempts)
}

func TestLoad_RequiredVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "short")
	_, err = config.Load()
	assert.ErrorContains(t, err, "at least 32")

	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")
	_, err = config.Load()
	assert.ErrorContains(t, err, "DB_PASSWORD")

	setRequiredEnv(t)
	t.Setenv("EMAIL_FROM", "")
	_, err = config.Load()
	assert.ErrorContains(t, err, "EMAIL_FROM")
}

func TestLoad_RejectsBadTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REMINDER_TIMEZONE", "Mars/Olympus_Mons")

	_, err := config.Load()
	assert.ErrorContains(t, err, "REMINDER_TIMEZONE")
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=require", cfg.DSN())
}
