package ops

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/herdwatch/internal/config"
)

func TestStatsReport(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&config.Logging{Level: "info", Format: "text"}, &buf)

	s := NewStatsReporter("@every 1h", func() []any {
		return []any{"roots", 3, "records", 2}
	}, logger)
	s.Report()

	out := buf.String()
	assert.Contains(t, out, "msg=stats")
	assert.Contains(t, out, "roots=3")
	assert.Contains(t, out, "records=2")
}

func TestStatsStartStop(t *testing.T) {
	s := NewStatsReporter("@every 1h", nil, Discard())
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}

func TestStatsInvalidSchedule(t *testing.T) {
	s := NewStatsReporter("not a schedule", nil, Discard())
	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stats schedule")
}
