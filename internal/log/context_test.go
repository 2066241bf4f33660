// SPDX-License-Identifier: MIT

package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/log"
)

func TestWithComponentFromContextCarriesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	ctx := base.WithContext(context.Background())
	ctx = log.ContextWithRequestID(ctx, "req-1")
	ctx = log.ContextWithSessionID(ctx, "sess-1")
	ctx = log.ContextWithJobID(ctx, "job-1")

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().Str(log.FieldEvent, "dispatch").Msg("transcription dispatched")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "orchestrator", line[log.FieldComponent])
	assert.Equal(t, "req-1", line[log.FieldRequestID])
	assert.Equal(t, "sess-1", line[log.FieldSessionID])
	assert.Equal(t, "job-1", line[log.FieldJobID])
	assert.Equal(t, "dispatch", line[log.FieldEvent])
	assert.Equal(t, "transcription dispatched", line["message"])
}

func TestWithContextSkipsEmptyCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := log.WithContext(context.Background(), base)
	logger.Warn().Msg("bare")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, log.FieldRequestID)
	assert.NotContains(t, line, log.FieldSessionID)
}
