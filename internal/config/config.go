package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const insecureJWTSecret = "dev-secret"

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Tickets    TicketsConfig
	Moderation ModerationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"support-ticket-service"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	NodeID                int64  `env:"APP_NODE_ID" envDefault:"1"`
}

// PostgresConfig holds DB connection values. An empty DSN runs the service on
// in-memory stores.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	// PingTimeoutMillis bounds the startup connectivity check.
	PingTimeoutMillis int `env:"REDIS_PING_TIMEOUT_MS" envDefault:"3000"`
}

// KafkaConfig controls domain event forwarding.
type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_TICKET_EVENTS_TOPIC" envDefault:"support.ticket-events"`
	Buffer  int      `env:"KAFKA_EVENT_BUFFER" envDefault:"256"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig defines how bearer tokens are verified and which roles count as staff.
type AuthConfig struct {
	JWTSecret       string   `env:"AUTH_JWT_SECRET" envDefault:"dev-secret"`
	StaffRoles      []string `env:"AUTH_STAFF_ROLES" envSeparator:"," envDefault:"admin,developer,moderator,mod,helper"`
	AuthorCanReopen bool     `env:"AUTH_AUTHOR_CAN_REOPEN" envDefault:"false"`
}

// TicketsConfig tunes message limits and real-time delivery.
type TicketsConfig struct {
	MaxUserMessageLength  int    `env:"TICKETS_MAX_USER_MESSAGE_LENGTH" envDefault:"500"`
	MaxStaffMessageLength int    `env:"TICKETS_MAX_STAFF_MESSAGE_LENGTH" envDefault:"0"`
	RealtimeBackend       string `env:"TICKETS_REALTIME_BACKEND" envDefault:"memory"`
	SubscriberBuffer      int    `env:"TICKETS_SUBSCRIBER_BUFFER" envDefault:"64"`
	GapTimeoutMillis      int    `env:"TICKETS_SEQUENCE_GAP_TIMEOUT_MS" envDefault:"2000"`
	StreamPingSeconds     int    `env:"TICKETS_STREAM_PING_SECONDS" envDefault:"25"`
	SequenceIdleMinutes   int    `env:"TICKETS_SEQUENCE_IDLE_MINUTES" envDefault:"10"`
}

// ModerationConfig configures the command queue used for sanctions.
type ModerationConfig struct {
	DispatchTimeoutSeconds int    `env:"MODERATION_DISPATCH_TIMEOUT_SECONDS" envDefault:"10"`
	NotifyChannel          string `env:"MODERATION_NOTIFY_CHANNEL" envDefault:"gameserver:commands"`
	IdempotencyTTLMinutes  int    `env:"MODERATION_IDEMPOTENCY_TTL_MINUTES" envDefault:"1440"`
}

// Load reads configuration from the environment (and a .env file when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Tickets.MaxUserMessageLength < 0 || c.Tickets.MaxStaffMessageLength < 0 {
		errs = append(errs, errors.New("message length limits must not be negative"))
	}
	if c.Tickets.GapTimeoutMillis <= 0 {
		errs = append(errs, errors.New("TICKETS_SEQUENCE_GAP_TIMEOUT_MS must be positive"))
	}
	if c.Tickets.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("TICKETS_SUBSCRIBER_BUFFER must be positive"))
	}
	switch c.Tickets.RealtimeBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown TICKETS_REALTIME_BACKEND %q", c.Tickets.RealtimeBackend))
	}
	if len(c.Auth.StaffRoles) == 0 {
		errs = append(errs, errors.New("AUTH_STAFF_ROLES must name at least one role"))
	}
	if c.App.NodeID < 0 || c.App.NodeID > 1023 {
		errs = append(errs, errors.New("APP_NODE_ID must be between 0 and 1023"))
	}
	if c.IsProduction() && c.Auth.JWTSecret == insecureJWTSecret {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be set in production"))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PingTimeout bounds the startup ping.
func (r RedisConfig) PingTimeout() time.Duration {
	return time.Duration(r.PingTimeoutMillis) * time.Millisecond
}

// GapTimeout is how long the sequencer waits for a missing message.
func (t TicketsConfig) GapTimeout() time.Duration {
	return time.Duration(t.GapTimeoutMillis) * time.Millisecond
}

// SequenceIdle is how long a quiet ticket keeps its ordering state.
func (t TicketsConfig) SequenceIdle() time.Duration {
	return time.Duration(t.SequenceIdleMinutes) * time.Minute
}

// StreamPing is the keep-alive interval of SSE subscriptions.
func (t TicketsConfig) StreamPing() time.Duration {
	if t.StreamPingSeconds <= 0 {
		return 25 * time.Second
	}
	return time.Duration(t.StreamPingSeconds) * time.Second
}

// DispatchTimeout bounds one sanction dispatch, independent of the caller.
func (m ModerationConfig) DispatchTimeout() time.Duration {
	if m.DispatchTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.DispatchTimeoutSeconds) * time.Second
}

// IdempotencyTTL is how long a sanction idempotency key is remembered.
func (m ModerationConfig) IdempotencyTTL() time.Duration {
	return time.Duration(m.IdempotencyTTLMinutes) * time.Minute
}
