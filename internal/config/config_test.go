package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, 500, cfg.Tickets.MaxUserMessageLength)
	assert.Equal(t, 0, cfg.Tickets.MaxStaffMessageLength)
	assert.Equal(t, "memory", cfg.Tickets.RealtimeBackend)
	assert.Equal(t, []string{"admin", "developer", "moderator", "mod", "helper"}, cfg.Auth.StaffRoles)
	assert.False(t, cfg.Auth.AuthorCanReopen)
	assert.Equal(t, 2*time.Second, cfg.Tickets.GapTimeout())
	assert.Equal(t, 10*time.Minute, cfg.Tickets.SequenceIdle())
	assert.Equal(t, 10*time.Second, cfg.Moderation.DispatchTimeout())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_STAFF_ROLES", "admin,helper")
	t.Setenv("TICKETS_MAX_USER_MESSAGE_LENGTH", "280")
	t.Setenv("TICKETS_REALTIME_BACKEND", "redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"admin", "helper"}, cfg.Auth.StaffRoles)
	assert.Equal(t, 280, cfg.Tickets.MaxUserMessageLength)
	assert.Equal(t, "redis", cfg.Tickets.RealtimeBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TICKETS_REALTIME_BACKEND", "websocket")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TICKETS_REALTIME_BACKEND")
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")

	t.Setenv("AUTH_JWT_SECRET", "a-real-secret-value")
	_, err = Load()
	assert.NoError(t, err)
}

func TestRequestTimeoutDisabled(t *testing.T) {
	assert.Zero(t, AppConfig{RequestTimeoutSeconds: 0}.RequestTimeout())
}

func TestValidateRejectsNonPositiveGapTimeout(t *testing.T) {
	for _, value := range []string{"0", "-5"} {
		t.Setenv("TICKETS_SEQUENCE_GAP_TIMEOUT_MS", value)

		_, err := Load()
		require.Error(t, err, value)
		assert.Contains(t, err.Error(), "TICKETS_SEQUENCE_GAP_TIMEOUT_MS")
	}
}

func TestRedisPingTimeout(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Redis.PingTimeout())
}
