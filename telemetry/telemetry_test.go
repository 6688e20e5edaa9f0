package telemetry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) { //nolint:paralleltest
	for _, key := range []string{"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_SERVICE_VERSION", "OTEL_TIMEOUT", "OTEL_LOGS_ENABLED"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	config, err := env.ParseAs[Config]()
	require.NoError(t, err)

	assert.False(t, config.Enabled)
	assert.Equal(t, "cartctl", config.ServiceName)
	assert.Equal(t, "1.0.0", config.ServiceVersion)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.True(t, config.Logs)
}

func TestConfigFromEnv(t *testing.T) { //nolint:paralleltest
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("OTEL_TIMEOUT", "250ms")

	config, err := env.ParseAs[Config]()
	require.NoError(t, err)

	assert.True(t, config.Enabled)
	assert.Equal(t, "http://collector:4318", config.Endpoint)
	assert.Equal(t, 250*time.Millisecond, config.Timeout)
}

func TestInitializeDisabled(t *testing.T) { //nolint:paralleltest
	require.NoError(t, Initialize(t.Context(), &Config{Enabled: false}))
	assert.Nil(t, LogHandler())

	// Enabled without an endpoint is also a no-op.
	require.NoError(t, Initialize(t.Context(), &Config{Enabled: true}))
	assert.Nil(t, LogHandler())

	require.NoError(t, Shutdown(t.Context()))
}

func TestInitializeAndShutdown(t *testing.T) { //nolint:paralleltest
	config := &Config{
		ServiceName:    "cartctl-test",
		ServiceVersion: "test",
		Environment:    "test",
		Endpoint:       "http://127.0.0.1:4318",
		Enabled:        true,
		Timeout:        100 * time.Millisecond,
		Logs:           true,
	}

	require.NoError(t, Initialize(t.Context(), config))
	assert.NotNil(t, LogHandler())

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	// Nothing was recorded, so shutdown has nothing to flush.
	require.NoError(t, Shutdown(ctx))
	assert.Nil(t, LogHandler())
}
