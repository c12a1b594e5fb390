package persistence

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/config"
)

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestMigrationsCreateCoreTables(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(migrationFiles, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		b, err := migrationFiles.ReadFile(path)
		all.Write(b)
		return err
	})
	require.NoError(t, err)

	for _, table := range []string{"tickets", "ticket_messages", "ticket_audit", "pending_commands"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestRunMigrationsWithoutDSN(t *testing.T) {
	assert.NoError(t, RunMigrations("", zap.NewNop()))
}

func TestNewPostgresWithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, pg.PoolHandle())
	assert.Error(t, pg.Ping(context.Background()))
	pg.Close()
}

func TestDisabledKafkaProducer(t *testing.T) {
	p := NewKafkaProducer(config.KafkaConfig{Enabled: false}, zap.NewNop())
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Publish(context.Background(), "topic", nil, []byte("x")))
	assert.NoError(t, p.Close())
}

func TestNewRedisUnreachable(t *testing.T) {
	r, err := NewRedis(context.Background(), config.RedisConfig{
		Addr:              "127.0.0.1:1",
		PingTimeoutMillis: 200,
	}, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "127.0.0.1:1")

	r.Close()
	assert.Error(t, r.Ping(context.Background()))
}
