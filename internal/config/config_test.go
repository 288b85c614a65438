package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "dynamodb", cfg.Storage.Type)
	assert.Equal(t, "iac-data-store", cfg.Storage.TableName)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts", cfg.Fetch.SourceURL)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Disabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "postgresql")
	t.Setenv("TABLE_NAME", "records")
	t.Setenv("API_URL", "https://example.com/data")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("API_TIMEOUT", "3s")
	t.Setenv("METRICS_DISABLED", "true")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, "postgresql", cfg.Storage.Type)
	assert.Equal(t, "records", cfg.Storage.TableName)
	assert.Equal(t, "https://example.com/data", cfg.Fetch.SourceURL)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Metrics.Disabled)
	// Region flows to both the storage and metrics clients.
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)
	assert.Equal(t, "eu-west-1", cfg.Metrics.Region)
}

func TestLoad_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_RETRIES", "not-a-number")
	t.Setenv("API_TIMEOUT", "soon")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
}
