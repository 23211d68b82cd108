package config

import (
	"os"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Empty(t, cfg.Schema.File)
	assert.Equal(t, []string{"*"}, cfg.Cors.AllowedOrigins)
	assert.Equal(t, sq.Dollar, cfg.Placeholder())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite3
  url: /tmp/library.db
server:
  port: 9000
  contextPath: crud/
schema:
  file: library.yaml
cors:
  allowedOrigins: ["https://example.org"]
`), 0o600))

	t.Setenv("SCHEMA_FILE", "override.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, sq.Question, cfg.Placeholder())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/crud", cfg.Server.ContextPath)
	assert.Equal(t, "override.yaml", cfg.Schema.File)
	assert.Equal(t, []string{"https://example.org"}, cfg.Cors.AllowedOrigins)
}

func TestLoadPlatformEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app:secret@db:5432/crud")
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:secret@db:5432/crud", cfg.Database.URL)
	assert.Equal(t, ":7070", cfg.Addr())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported database.driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://app:secret@db:5432/crud", "postgres://app:xxxxx@db:5432/crud"},
		{"/var/lib/crud.db", "/var/lib/crud.db"},
		{"host=db user=app password=secret", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactURL(tt.in))
	}
}
