package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "portal.yaml"))
	require.Error(t, err, "an explicit missing file must fail")

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.Trash)
	assert.Equal(t, 60*time.Second, cfg.Redis.TTL)
	assert.True(t, cfg.ConnexCS.MockConnexCS(), "no credentials means mock mode")
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	yaml := `
server:
  addr: "127.0.0.1:9000"
database:
  type: postgres
  dsn: "postgres://app:hunter2@db:5432/voxlane"
connexcs:
  username: api
  password: secret
retention:
  trash: 72h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))
	t.Setenv("VOXLANE_LOGGING_LEVEL", "debug")
	t.Setenv("VOXLANE_AUTH_SESSION_TTL", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 72*time.Hour, cfg.Retention.Trash)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.ConnexCS.MockConnexCS())

	red := cfg.Redacted()
	assert.Equal(t, "postgres://app:***@db:5432/voxlane", red.Database.DSN)
	assert.Equal(t, "***", red.ConnexCS.Password)
	assert.Equal(t, "secret", cfg.ConnexCS.Password, "Redacted must not modify the original")
}

func TestValidateReportsAllFields(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VOXLANE_DATABASE_TYPE", "mongodb")
	t.Setenv("VOXLANE_SERVER_TLS", "true")
	t.Setenv("VOXLANE_TRACING_SAMPLE_RATE", "2")

	_, err := Load("")
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Fields, "database.type")
	assert.Contains(t, cerr.Fields, "server.cert_file")
	assert.Contains(t, cerr.Fields, "tracing.sample_rate")
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidateBootstrapPasswordLength(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VOXLANE_AUTH_BOOTSTRAP_EMAIL", "admin@voxlane.test")
	t.Setenv("VOXLANE_AUTH_BOOTSTRAP_PASSWORD", strings.Repeat("p", 100))

	_, err := Load("")
	var cerr *Error
	require.True(t, errors.As(err, &cerr), "expected *Error, got %v", err)
	assert.Contains(t, cerr.Fields, "auth.bootstrap_password")

	t.Setenv("VOXLANE_AUTH_BOOTSTRAP_PASSWORD", strings.Repeat("p", 72))
	_, err = Load("")
	assert.NoError(t, err)
}

func TestRedactKeyValueDSN(t *testing.T) {
	got := redactDSN("host=db user=app password=hunter2 dbname=voxlane")
	assert.Equal(t, "host=db user=app password=*** dbname=voxlane", got)
	assert.Equal(t, "voxlane.db", redactDSN("voxlane.db"))
}
