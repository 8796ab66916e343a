package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/test_dir_execute", cfg.Grader.ExecuteDir)
	assert.Equal(t, "/test_dir_executed", cfg.Grader.ExecutedDir)
	assert.Equal(t, "python3.9", cfg.Grader.Interpreter)
	assert.Equal(t, time.Second, cfg.Grader.CaseTimeout)
	assert.Equal(t, time.Second, cfg.Grader.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Grader.SubmitCooldown)
	assert.Zero(t, cfg.Grader.SubmitDailyLimit)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/grading")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CASE_TIMEOUT", "2s")
	t.Setenv("SUBMIT_DAILY_LIMIT", "20")
	t.Setenv("CASDOOR_ENDPOINT", "https://auth.example.com")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Grader.CaseTimeout)
	assert.Equal(t, 20, cfg.Grader.SubmitDailyLimit)
	assert.Equal(t, "https://auth.example.com", cfg.Casdoor.Endpoint)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE=memory\nPORT=9999\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORE")
		os.Unsetenv("PORT")
	})

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE": "postgres"}},
		{"unknown store", map[string]string{"STORE": "sqlite"}},
		{"bad level", map[string]string{"STORE": "memory", "LOG_LEVEL": "loud"}},
		{"same dirs", map[string]string{"STORE": "memory", "EXECUTE_DIR": "/x", "EXECUTED_DIR": "/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(New(), "")
			assert.Error(t, err)
		})
	}
}
