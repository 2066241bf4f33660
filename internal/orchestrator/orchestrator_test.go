// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/config"
	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/store"
	"github.com/coachscribe/coachscribe/internal/stt"
	"github.com/coachscribe/coachscribe/internal/stt/mock"
	"github.com/coachscribe/coachscribe/internal/usage"
)

type testEnv struct {
	store   *store.MemoryStore
	blob    *blob.MemoryGateway
	ledger  *usage.MemLedger
	queue   *queue.MemoryQueue
	backend *mock.Backend
	orc     *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	bg := blob.NewMemoryGateway()
	backend := &mock.Backend{Provider: model.ProviderAssemblyAI, DetectsLanguage: true}
	reg, err := stt.NewRegistry(model.ProviderAssemblyAI, backend)
	require.NoError(t, err)
	plans, err := config.NewPlanRegistry("")
	require.NoError(t, err)
	led := usage.NewMemLedger(st)
	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { _ = q.Close() })

	orc := New(st, bg, reg, quota.NewEvaluator(plans), led, q, usage.DefaultRates(), 15*time.Minute)

	require.NoError(t, st.PutUser(context.Background(), &model.User{
		ID:                "u1",
		Email:             "u1@example.com",
		Plan:              model.PlanPro,
		Role:              model.RoleUser,
		CurrentMonthStart: model.MonthStartUTC(time.Now()),
	}))

	return &testEnv{store: st, blob: bg, ledger: led, queue: q, backend: backend, orc: orc}
}

// createPending drives a fresh session to PENDING with audio attached.
func (e *testEnv) createPending(t *testing.T) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := e.orc.CreateSession(ctx, "u1", "weekly check-in", "zh-TW", model.ProviderAuto)
	require.NoError(t, err)

	grant, err := e.orc.RequestUploadURL(ctx, sess.ID, "u1", "call.mp3", 10)
	require.NoError(t, err)
	e.blob.Put(grant.BlobPath, 10<<20)

	res, err := e.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.True(t, res.Ready)

	sess, err = e.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, sess.Status)
	return sess
}

// startProcessing additionally dispatches the pending session.
func (e *testEnv) startProcessing(t *testing.T) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess := e.createPending(t)
	_, err := e.orc.StartTranscription(ctx, sess.ID, "u1")
	require.NoError(t, err)
	sess, err = e.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, sess.Status)
	return sess
}

func reasonOf(err error) model.ReasonCode { return lifecycle.ReasonOf(err) }

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.orc.CreateSession(ctx, "u1", "first call", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploading, sess.Status)
	assert.Equal(t, "auto", sess.Language, "language defaults to auto")
	assert.Equal(t, model.ProviderAuto, sess.Provider)
	assert.NotEmpty(t, sess.ID)

	_, err = env.orc.CreateSession(ctx, "u1", "", "zh-TW", model.ProviderAuto)
	assert.Equal(t, model.RInvalidFormat, reasonOf(err), "empty title rejected")

	_, err = env.orc.CreateSession(ctx, "u1", "x", "zh-TW", model.Provider("whisper"))
	assert.Equal(t, model.RInvalidFormat, reasonOf(err), "unknown provider rejected")

	_, err = env.orc.CreateSession(ctx, "ghost", "x", "zh-TW", model.ProviderAuto)
	assert.Equal(t, model.RNotFound, reasonOf(err), "unknown user rejected")
}

func TestRequestUploadURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, err := env.orc.CreateSession(ctx, "u1", "call", "zh-TW", model.ProviderAuto)
	require.NoError(t, err)

	t.Run("filename validation", func(t *testing.T) {
		for _, name := range []string{"notes.pdf", "call", "../evil.mp3", "a/b.mp3", ""} {
			_, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", name, 10)
			assert.Equal(t, model.RInvalidFormat, reasonOf(err), "filename %q", name)
		}
		// Extension match is case-insensitive.
		_, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "CALL.MP3", 10)
		assert.NoError(t, err)
	})

	t.Run("grant records intent", func(t *testing.T) {
		grant, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "call.m4a", 42)
		require.NoError(t, err)
		assert.NotEmpty(t, grant.URL)
		assert.NotEmpty(t, grant.BlobPath)
		assert.True(t, grant.Expiry.After(time.Now()))

		got, err := env.orc.GetSession(ctx, sess.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, "call.m4a", got.AudioFilename)
		assert.Equal(t, grant.BlobPath, got.BlobPath)
		assert.Equal(t, 42.0, got.AudioSizeMB)
		assert.Equal(t, model.StatusUploading, got.Status, "URL issuance does not advance the state")
	})

	t.Run("oversized file denied", func(t *testing.T) {
		// PRO caps uploads at 200 MB.
		_, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "big.wav", 201)
		assert.Equal(t, model.RFileTooLarge, reasonOf(err))
	})

	t.Run("wrong state", func(t *testing.T) {
		pending := env.createPending(t)
		_, err := env.orc.RequestUploadURL(ctx, pending.ID, "u1", "call.mp3", 10)
		assert.Equal(t, model.RStateConflict, reasonOf(err))
	})
}

func TestConfirmUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess, err := env.orc.CreateSession(ctx, "u1", "call", "zh-TW", model.ProviderAuto)
	require.NoError(t, err)

	// Confirming before an upload URL was issued is a hard error.
	_, err = env.orc.ConfirmUpload(ctx, sess.ID, "u1")
	assert.Equal(t, model.RAudioMissing, reasonOf(err))

	grant, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "call.mp3", 10)
	require.NoError(t, err)

	// Object not there yet: report that, stay in UPLOADING.
	res, err := env.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.False(t, res.Ready)
	got, _ := env.orc.GetSession(ctx, sess.ID, "u1")
	assert.Equal(t, model.StatusUploading, got.Status)

	env.blob.Put(grant.BlobPath, 1024)
	res, err = env.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.True(t, res.Ready)
	assert.Equal(t, int64(1024), res.SizeBytes)
	got, _ = env.orc.GetSession(ctx, sess.ID, "u1")
	assert.Equal(t, model.StatusPending, got.Status)

	// A second confirm is idempotent.
	res, err = env.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.True(t, res.Ready)
	got, _ = env.orc.GetSession(ctx, sess.ID, "u1")
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestUploadURLResetsFailedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.startProcessing(t)
	require.NoError(t, env.orc.Fail(ctx, sess.ID, "u1", "provider exploded"))

	grant, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "take2.mp3", 8)
	require.NoError(t, err)

	got, err := env.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploading, got.Status)
	assert.Empty(t, got.ErrorMessage)
	assert.Empty(t, got.TranscriptionJobID)
	assert.Zero(t, got.ProgressPct)
	assert.Equal(t, "take2.mp3", got.AudioFilename)
	assert.Equal(t, grant.BlobPath, got.BlobPath)
}

func TestStartTranscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.createPending(t)

	res, err := env.orc.StartTranscription(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.JobID)
	// 10 MB ~ 10 audio minutes, times the 2.5 processing factor.
	assert.Equal(t, 25, res.EstimatedCompletionMinutes)
	assert.False(t, res.Retry)

	got, err := env.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
	assert.Equal(t, model.ProviderAssemblyAI, got.ResolvedProvider, "auto resolved to the default")
	assert.Equal(t, res.JobID, got.TranscriptionJobID)
	require.NotNil(t, got.StartedAt)

	job, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, job.SessionID)
	assert.Equal(t, "u1", job.OwnerID)

	// The second start observes PROCESSING and loses.
	_, err = env.orc.StartTranscription(ctx, sess.ID, "u1")
	assert.Equal(t, model.RStateConflict, reasonOf(err))
}

func TestStartRequiresAudio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.createPending(t)

	// The object vanished between confirm and start.
	env.blob.Delete(sess.BlobPath)
	_, err := env.orc.StartTranscription(ctx, sess.ID, "u1")
	assert.Equal(t, model.RAudioMissing, reasonOf(err))

	got, _ := env.orc.GetSession(ctx, sess.ID, "u1")
	assert.Equal(t, model.StatusPending, got.Status, "state untouched on admission failure")
}

func TestStartDeniedOnMinuteQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.createPending(t)

	u, err := env.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	u.UsageMinutes = 1195 // PRO caps at 1200; the 10-minute estimate busts it
	require.NoError(t, env.store.PutUser(ctx, u))

	_, err = env.orc.StartTranscription(ctx, sess.ID, "u1")
	assert.Equal(t, model.RQuotaExceeded, reasonOf(err))
	assert.True(t, errors.Is(err, lifecycle.ErrQuotaExceeded))

	got, _ := env.orc.GetSession(ctx, sess.ID, "u1")
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestStartUnsupportedLanguage(t *testing.T) {
	env := newTestEnv(t)
	env.backend.DetectsLanguage = false
	ctx := context.Background()

	sess, err := env.orc.CreateSession(ctx, "u1", "call", "auto", model.ProviderAuto)
	require.NoError(t, err)
	grant, err := env.orc.RequestUploadURL(ctx, sess.ID, "u1", "call.mp3", 5)
	require.NoError(t, err)
	env.blob.Put(grant.BlobPath, 1024)
	_, err = env.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)

	_, err = env.orc.StartTranscription(ctx, sess.ID, "u1")
	assert.Equal(t, model.RLangNotSupported, reasonOf(err))
}

func TestEnqueueFailureFailsTheRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.createPending(t)

	require.NoError(t, env.queue.Close())
	_, err := env.orc.StartTranscription(ctx, sess.ID, "u1")
	require.Error(t, err)

	got, err := env.orc.GetSession(ctx, sess.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "work queue unavailable", got.ErrorMessage)
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for range 3 {
		_, err := env.orc.CreateSession(ctx, "u1", "call", "zh-TW", model.ProviderAuto)
		require.NoError(t, err)
	}
	out, err := env.orc.ListSessions(ctx, "u1", nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	completed := model.StatusCompleted
	out, err = env.orc.ListSessions(ctx, "u1", &completed, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}
