package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
clickhouse:
  host: localhost
training:
  symbols: ["BTC"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "coinsage", cfg.ClickHouse.Database)
	assert.Equal(t, 60, cfg.Model.SequenceLength)
	assert.Equal(t, []int{64, 32}, cfg.Model.HiddenSizes)
	assert.Equal(t, "minmax", cfg.Model.ScalerKind)
	assert.Equal(t, "1h", cfg.Training.Timeframe)
	assert.Equal(t, 1000, cfg.Training.LookbackBars)
	assert.Equal(t, time.Minute, cfg.Cache.ForecastTTL)
	assert.Equal(t, 24*time.Hour, cfg.Training.RetrainInterval)
}

func TestLoadRejectsMissingHost(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
training:
  symbols: ["BTC"]
`))
	require.Error(t, err)
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
clickhouse:
  host: localhost
`))
	require.Error(t, err)
}

func TestLoadRejectsKafkaWithoutBrokers(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
kafka:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestLoadRejectsMinOverMaxFeatures(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
model:
  min_features: 6
  max_features: 3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_features")
}

func TestLoadRejectsBadTimeframe(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
clickhouse:
  host: localhost
training:
  symbols: ["BTC"]
  timeframe: 5m
`))
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SOL,DOGE")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("MODEL_DIR", "/var/lib/coinsage/models")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"SOL", "DOGE"}, cfg.Training.Symbols)
	assert.Equal(t, "ch.internal", cfg.ClickHouse.Host)
	assert.Equal(t, "/var/lib/coinsage/models", cfg.Registry.ModelDir)
}
