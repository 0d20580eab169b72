package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDecodesEncodedPassword(t *testing.T) {
	path := writeConfig(t, `
account:
  account_name: acme
  user_name: me@acme.com
  password_encoded: c2VjcmV0
rehydration:
  in_box: ./in
  storage: files
  keep_na_files: true
  request_timeout: 15s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Account.AccountName)
	assert.Equal(t, "secret", cfg.Account.Password)
	assert.Equal(t, "./in", cfg.Rehydration.InBox)
	assert.True(t, cfg.Rehydration.KeepNAFiles)
	assert.Equal(t, 15*time.Second, cfg.Rehydration.RequestTimeout)
	assert.Equal(t, defaultBaseURL, cfg.Account.BaseURL)
	assert.Equal(t, defaultBatchSize, cfg.Rehydration.BatchSize)
	assert.Equal(t, defaultOutBoxNA, cfg.Rehydration.OutBoxNA)
}

func TestLoadPlaintextPassword(t *testing.T) {
	path := writeConfig(t, `
account:
  account_name: acme
  password: plain
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.Account.Password)
}

func TestLoadEnvironmentPasswordBeatsEncodedFilePassword(t *testing.T) {
	t.Setenv("REHYDRATE_PASSWORD", "from-env")
	path := writeConfig(t, `
account:
  account_name: acme
  password_encoded: c2VjcmV0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account.Password)
	assert.Empty(t, cfg.Account.PasswordEncoded)
}

func TestLoadEncodedEnvironmentPasswordWins(t *testing.T) {
	t.Setenv("REHYDRATE_PASSWORD", "plain")
	t.Setenv("REHYDRATE_PASSWORD_ENCODED", "ZW5jb2RlZA==")
	path := writeConfig(t, `
account:
  account_name: acme
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "encoded", cfg.Account.Password)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("REHYDRATE_ACCOUNT_NAME", "from-env")
	t.Setenv("REHYDRATE_STORAGE", StorageDatabase)
	t.Setenv("REHYDRATE_DB_PORT", "6543")
	t.Setenv("REHYDRATE_BATCH_SIZE", "100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Account.AccountName)
	assert.Equal(t, StorageDatabase, cfg.Rehydration.Storage)
	assert.Equal(t, 6543, cfg.Database.Port)
	// The API caps a request at 25 ids.
	assert.Equal(t, 25, cfg.Rehydration.BatchSize)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing account", body: "rehydration:\n  storage: files\n"},
		{name: "unknown storage", body: "account:\n  account_name: a\nrehydration:\n  storage: tape\n"},
		{name: "bad encoded password", body: "account:\n  account_name: a\n  password_encoded: '***'\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := defaults()
	cfg.Database = DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Schema:   "rehydration",
		UserName: "app",
		Password: "p@ss",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/rehydration?sslmode=disable", cfg.DSN())
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := defaults()
	cfg.Rehydration.InBox = filepath.Join(root, "in")
	cfg.Rehydration.InBoxCompleted = filepath.Join(root, "in", "completed")
	cfg.Rehydration.OutBox = filepath.Join(root, "out")
	cfg.Rehydration.OutBoxNA = filepath.Join(root, "out", "na")
	cfg.Rehydration.OutBoxOld = filepath.Join(root, "out", "old")

	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{"in", "in/completed", "out", "out/na", "out/old"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
