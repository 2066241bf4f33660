// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

func (e *testEnv) completeSession(t *testing.T) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess := e.startProcessing(t)
	require.NoError(t, e.orc.Complete(ctx, sess.ID, "u1", sampleResult()))
	sess, err := e.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	return sess
}

func TestPutSpeakerRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.completeSession(t)

	require.NoError(t, env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{
		1: model.RoleCoach,
		2: model.RoleClient,
	}))
	roles, err := env.store.SessionRoles(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCoach, roles[1])

	// Re-assign merges, it does not replace.
	require.NoError(t, env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{
		1: model.RoleClient,
	}))
	roles, err = env.store.SessionRoles(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleClient, roles[1])
	assert.Equal(t, model.RoleClient, roles[2])

	err = env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{0: model.RoleCoach})
	assert.Equal(t, model.RInvalidFormat, reasonOf(err))

	err = env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{1: "observer"})
	assert.Equal(t, model.RInvalidFormat, reasonOf(err))
}

func TestPutSegmentRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.completeSession(t)

	segments, err := env.store.Segments(ctx, sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, segments)

	require.NoError(t, env.orc.PutSegmentRoles(ctx, sess.ID, "u1", map[string]model.SpeakerRole{
		segments[0].ID: model.RoleClient,
	}))
	overrides, err := env.store.SegmentRoles(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleClient, overrides[segments[0].ID])

	err = env.orc.PutSegmentRoles(ctx, sess.ID, "u1", map[string]model.SpeakerRole{
		"no-such-segment": model.RoleCoach,
	})
	assert.Equal(t, model.RNotFound, reasonOf(err))
}

func TestRolesRequireCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.startProcessing(t)

	err := env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{1: model.RoleCoach})
	assert.Equal(t, model.RStateConflict, reasonOf(err))
	err = env.orc.PutSegmentRoles(ctx, sess.ID, "u1", map[string]model.SpeakerRole{"x": model.RoleCoach})
	assert.Equal(t, model.RStateConflict, reasonOf(err))
}

func TestExportTranscript(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.completeSession(t)

	require.NoError(t, env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{
		1: model.RoleCoach,
		2: model.RoleClient,
	}))

	data, contentType, err := env.orc.ExportTranscript(ctx, sess.ID, "u1", model.FormatVTT)
	require.NoError(t, err)
	assert.Equal(t, "text/vtt", contentType)
	body := string(data)
	assert.True(t, strings.HasPrefix(body, "WEBVTT"))
	assert.Contains(t, body, "<v 教練>今天想聊什麼?</v>")
	assert.Contains(t, body, "<v 客戶>工作上的瓶頸。</v>")

	u, err := env.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.ExportCount)

	_, _, err = env.orc.ExportTranscript(ctx, sess.ID, "u1", model.ExportFormat("docx"))
	assert.Equal(t, model.RInvalidFormat, reasonOf(err))
}

func TestExportSegmentOverrideWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.completeSession(t)

	require.NoError(t, env.orc.PutSpeakerRoles(ctx, sess.ID, "u1", map[int]model.SpeakerRole{
		1: model.RoleCoach,
		2: model.RoleClient,
	}))
	segments, err := env.store.Segments(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, env.orc.PutSegmentRoles(ctx, sess.ID, "u1", map[string]model.SpeakerRole{
		segments[0].ID: model.RoleClient,
	}))

	data, _, err := env.orc.ExportTranscript(ctx, sess.ID, "u1", model.FormatSRT)
	require.NoError(t, err)
	assert.Contains(t, string(data), "客戶: 今天想聊什麼?")
}

func TestExportRequiresCompletedTranscript(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.startProcessing(t)

	_, _, err := env.orc.ExportTranscript(ctx, sess.ID, "u1", model.FormatJSON)
	assert.Equal(t, model.RTranscriptUnavailable, reasonOf(err))
}

func TestExportQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.completeSession(t)

	u, err := env.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	u.ExportCount = 200 // PRO export ceiling
	require.NoError(t, env.store.PutUser(ctx, u))

	_, _, err = env.orc.ExportTranscript(ctx, sess.ID, "u1", model.FormatTXT)
	assert.Equal(t, model.RQuotaExceeded, reasonOf(err))
}

const manualVTT = `WEBVTT

00:00:00.000 --> 00:00:04.000
<v Speaker 1>我們開始吧。

00:00:04.000 --> 00:00:09.500
<v Speaker 2>好的。
`

func TestUploadTranscript(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, err := env.orc.CreateSession(ctx, "u1", "manual notes", "zh-TW", model.ProviderAuto)
	require.NoError(t, err)

	updated, err := env.orc.UploadTranscript(ctx, sess.ID, "u1", "session.vtt", []byte(manualVTT))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)
	assert.Equal(t, 9.5, updated.DurationSeconds)
	assert.Equal(t, 100, updated.ProgressPct)
	assert.True(t, updated.ManualTranscript, "a manual completion is flagged; it may have no audio object")

	report, err := env.orc.GetStatus(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.True(t, report.ManualTranscript)

	segments, err := env.store.Segments(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 1, segments[0].SpeakerID)
	assert.Equal(t, 2, segments[1].SpeakerID)
	assert.Equal(t, "我們開始吧。", segments[0].Content)

	logs := env.ledger.LogsFor(sess.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, model.UsageManual, logs[0].Kind)
	assert.False(t, logs[0].Billable)
	assert.Equal(t, 1, logs[0].DurationMinutes)
}

func TestUploadTranscriptRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("bad extension", func(t *testing.T) {
		sess, err := env.orc.CreateSession(ctx, "u1", "x", "zh-TW", model.ProviderAuto)
		require.NoError(t, err)
		_, err = env.orc.UploadTranscript(ctx, sess.ID, "u1", "notes.txt", []byte("hello"))
		assert.Equal(t, model.RInvalidFormat, reasonOf(err))
	})

	t.Run("wrong state", func(t *testing.T) {
		sess := env.startProcessing(t)
		_, err := env.orc.UploadTranscript(ctx, sess.ID, "u1", "session.vtt", []byte(manualVTT))
		assert.Equal(t, model.RStateConflict, reasonOf(err))
	})

	t.Run("failed session accepts a manual transcript", func(t *testing.T) {
		sess := env.startProcessing(t)
		require.NoError(t, env.orc.Fail(ctx, sess.ID, "u1", "boom"))
		updated, err := env.orc.UploadTranscript(ctx, sess.ID, "u1", "session.vtt", []byte(manualVTT))
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, updated.Status)
		assert.Empty(t, updated.ErrorMessage)
	})
}
