package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsAreAttached(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test"})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	l := FromContext(ctx, "wizard")
	l.Info().Int(FieldStep, 4).Msg("advanced")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry[FieldService])
	assert.Equal(t, "wizard", entry[FieldComponent])
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "sess-1", entry[FieldSessionID])
	assert.Equal(t, float64(4), entry[FieldStep])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("x")
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
