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
pipeline:
  symbols: [AAPL, MSFT]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Pipeline.Symbols)
	assert.Equal(t, "clickhouse", c.Pipeline.Source)
	assert.Equal(t, []int{15, 60}, c.Pipeline.Intervals)
	assert.Equal(t, "nearest", c.Pipeline.Interpolation)
	assert.Equal(t, 24*time.Hour, c.Pipeline.Lookback)
	assert.Equal(t, 4, c.Pipeline.Workers)
	assert.Equal(t, "sqlite", c.Storage.Type)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "finbars.ticks", c.Kafka.TickTopic)
	assert.Equal(t, time.Minute, c.Cache.TTL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: prod
pipeline:
  symbols: [BTC]
  intervals: [5, 30]
  interpolation: previous
  lookback: 6h
  schedule: "0 */5 * * * *"
storage:
  type: clickhouse
`))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 30}, c.Pipeline.Intervals)
	assert.Equal(t, "previous", c.Pipeline.Interpolation)
	assert.Equal(t, 6*time.Hour, c.Pipeline.Lookback)
	assert.Equal(t, "0 */5 * * * *", c.Pipeline.Schedule)
	assert.Equal(t, "clickhouse", c.Storage.Type)
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("FINBARS_PIPELINE_SYMBOLS", "ETH,SOL")
	t.Setenv("FINBARS_PIPELINE_INTERVALS", "10,20")
	t.Setenv("FINBARS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FINBARS_PIPELINE_PUBLISH", "true")
	t.Setenv("FINBARS_CACHE_REDIS_ENABLED", "true")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "SOL"}, c.Pipeline.Symbols)
	assert.Equal(t, []int{10, 20}, c.Pipeline.Intervals)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Pipeline.Publish)
	assert.True(t, c.Cache.Redis.Enabled)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no symbols", mutate: func(c *Config) { c.Pipeline.Symbols = nil }},
		{name: "unknown source", mutate: func(c *Config) { c.Pipeline.Source = "csv" }},
		{name: "finnhub without key", mutate: func(c *Config) { c.Pipeline.Source = "finnhub" }},
		{name: "zero interval", mutate: func(c *Config) { c.Pipeline.Intervals = []int{0} }},
		{name: "duplicate interval", mutate: func(c *Config) { c.Pipeline.Intervals = []int{15, 15} }},
		{name: "bad interpolation", mutate: func(c *Config) { c.Pipeline.Interpolation = "linear" }},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "s3" }},
		{name: "publish without brokers", mutate: func(c *Config) { c.Pipeline.Publish = true }},
		{name: "ingest without key", mutate: func(c *Config) {
			c.Ingest.Enabled = true
			c.Kafka.Brokers = []string{"k:9092"}
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, minimalYAML))
			require.NoError(t, err)
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSortedIntervals(t *testing.T) {
	in := []int{60, 5, 15}
	assert.Equal(t, []int{5, 15, 60}, SortedIntervals(in))
	assert.Equal(t, []int{60, 5, 15}, in)
}
