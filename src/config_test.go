package src

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogConfig.Level)
	assert.Equal(t, "python3", cfg.ExecutorConfig.Interpreter)
	assert.Equal(t, 60*time.Second, cfg.ExecutorConfig.Timeout)
	assert.Equal(t, 0, cfg.DialogueConfig.MaxTurns)
	assert.Equal(t, 40*time.Minute, cfg.RedisConfig.TTL)
}

func TestLoadConfigReadsEnvAndDotEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LLM_PROVIDER=ollama\nLLM_MODEL=llama3\n"), 0644))
	t.Setenv("EXEC_TIMEOUT", "5s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Cleanup(func() {
		os.Unsetenv("LLM_PROVIDER")
		os.Unsetenv("LLM_MODEL")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLMConfig.Provider)
	assert.Equal(t, "llama3", cfg.LLMConfig.Model)
	assert.Equal(t, 5*time.Second, cfg.ExecutorConfig.Timeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisConfig.URL)
}
