package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "scripthound", cfg.Logger.ServiceName)
	assert.Equal(t, 8, cfg.Engine.WorkerConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Engine.TaskTimeout)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5.0, cfg.Fetch.RateLimit)
	assert.Equal(t, int64(5*1024*1024), cfg.Analysis.MaxScriptBytes)
	assert.False(t, cfg.Database.Enabled)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	base := NewDefaultConfig()

	t.Run("invalid worker concurrency", func(t *testing.T) {
		cfg := *base
		cfg.Engine.WorkerConcurrency = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.worker_concurrency")
	})

	t.Run("invalid task timeout", func(t *testing.T) {
		cfg := *base
		cfg.Engine.TaskTimeout = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.task_timeout")
	})

	t.Run("invalid rate limit", func(t *testing.T) {
		cfg := *base
		cfg.Fetch.RateLimit = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch.rate_limit")
	})

	t.Run("database enabled without url", func(t *testing.T) {
		cfg := *base
		cfg.Database.Enabled = true
		cfg.Database.URL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.url")
	})
}

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
  format: json
engine:
  worker_concurrency: 3
fetch:
  rate_limit: 1.5
  user_agent: "custom-agent"
analysis:
  max_script_bytes: 1024
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 3, cfg.Engine.WorkerConcurrency)
	assert.Equal(t, 1.5, cfg.Fetch.RateLimit)
	assert.Equal(t, "custom-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, int64(1024), cfg.Analysis.MaxScriptBytes)
	// Untouched sections keep their defaults.
	assert.Equal(t, 2*time.Minute, cfg.Engine.TaskTimeout)
}

func TestNewConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.worker_concurrency", -2)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestInitializeMissingFileIsNotFatal(t *testing.T) {
	v := viper.New()
	require.NoError(t, Initialize(v, ""))
	assert.Equal(t, "info", v.GetString("logger.level"))
}
