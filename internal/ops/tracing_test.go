package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/herdwatch/internal/config"
)

func TestTracingDisabled(t *testing.T) {
	tr, err := InitTracing(context.Background(), &config.Tracing{Enabled: false}, "dev", Discard())
	require.NoError(t, err)
	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestTracingEnabled(t *testing.T) {
	cfg := &config.Tracing{Enabled: true, Endpoint: "127.0.0.1:4318", ServiceName: "herdwatch-test"}

	tr, err := InitTracing(context.Background(), cfg, "dev", Discard())
	require.NoError(t, err)
	assert.True(t, tr.Enabled())

	// nothing was recorded, so shutdown does not need the collector
	assert.NoError(t, tr.Shutdown(context.Background()))
}
