package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearP2NEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"P2N_ENV", "P2N_MONGO_URI", "P2N_MONGO_DB", "P2N_BLOB_BUCKET",
		"P2N_BLOB_REGION", "P2N_BLOB_SIGNED_URL_TTL", "ANTHROPIC_API_KEY",
		"P2N_ANTHROPIC_MODEL", "OPENAI_API_KEY", "P2N_OPENAI_MODEL",
		"P2N_RESCUE_MODEL", "P2N_PYTHON_EXECUTABLE", "P2N_EXTRACT_MIN_CONFIDENCE",
		"P2N_HTTP_ADDR", "P2N_ANTHROPIC_TPM", "P2N_OPENAI_TPM",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearP2NEnv(t)
	cfg := Load()
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	require.Equal(t, "paper2notebook", cfg.MongoDB)
	require.Equal(t, "paper2notebook", cfg.BlobBucket)
	require.Equal(t, "us-east-1", cfg.BlobRegion)
	require.Equal(t, 120*time.Second, cfg.BlobSignedURLTTL)
	require.Equal(t, "claude-sonnet-4-5", cfg.AnthropicModel)
	require.Equal(t, "gpt-4o", cfg.OpenAIModel)
	require.Equal(t, "gpt-4o-mini", cfg.RescueModel)
	require.Equal(t, "jupyter", cfg.PythonExecutable)
	require.InDelta(t, 0.5, cfg.ExtractMinConfidence, 1e-9)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.InDelta(t, 60000, cfg.AnthropicTPM, 1e-9)
	require.InDelta(t, 60000, cfg.OpenAITPM, 1e-9)
}

func TestLoadReadsOverridesFromEnvironment(t *testing.T) {
	clearP2NEnv(t)
	t.Setenv("P2N_ENV", "prod")
	t.Setenv("P2N_MONGO_URI", "mongodb://prod-host:27017")
	t.Setenv("P2N_EXTRACT_MIN_CONFIDENCE", "0.75")
	t.Setenv("P2N_BLOB_SIGNED_URL_TTL", "5m")

	cfg := Load()
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "mongodb://prod-host:27017", cfg.MongoURI)
	require.InDelta(t, 0.75, cfg.ExtractMinConfidence, 1e-9)
	require.Equal(t, 5*time.Minute, cfg.BlobSignedURLTTL)
}

func TestGetenvFloatFallsBackOnUnparseableValue(t *testing.T) {
	t.Setenv("P2N_TEST_FLOAT", "not-a-number")
	require.Equal(t, 0.5, getenvFloat("P2N_TEST_FLOAT", 0.5))
}

func TestGetenvDurationFallsBackOnUnparseableValue(t *testing.T) {
	t.Setenv("P2N_TEST_DURATION", "not-a-duration")
	require.Equal(t, time.Minute, getenvDuration("P2N_TEST_DURATION", time.Minute))
}
