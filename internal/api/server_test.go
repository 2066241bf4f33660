// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/config"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/orchestrator"
	"github.com/coachscribe/coachscribe/internal/queue"
	"github.com/coachscribe/coachscribe/internal/quota"
	"github.com/coachscribe/coachscribe/internal/store"
	"github.com/coachscribe/coachscribe/internal/stt"
	"github.com/coachscribe/coachscribe/internal/stt/mock"
	"github.com/coachscribe/coachscribe/internal/usage"
)

type apiEnv struct {
	store  *store.MemoryStore
	blob   *blob.MemoryGateway
	orc    *orchestrator.Orchestrator
	server *Server
	router http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	st := store.NewMemoryStore()
	bg := blob.NewMemoryGateway()
	reg, err := stt.NewRegistry(model.ProviderAssemblyAI, &mock.Backend{DetectsLanguage: true})
	require.NoError(t, err)
	plans, err := config.NewPlanRegistry("")
	require.NoError(t, err)
	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { _ = q.Close() })

	orc := orchestrator.New(st, bg, reg, quota.NewEvaluator(plans),
		usage.NewMemLedger(st), q, usage.DefaultRates(), 15*time.Minute)
	require.NoError(t, st.PutUser(context.Background(), &model.User{
		ID:                "u1",
		Email:             "u1@example.com",
		Plan:              model.PlanPro,
		Role:              model.RoleUser,
		CurrentMonthStart: model.MonthStartUTC(time.Now()),
	}))

	srv := NewServer(orc)
	return &apiEnv{store: st, blob: bg, orc: orc, server: srv, router: srv.Router()}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, "u1", method, path, body)
}

func (e *apiEnv) doAs(t *testing.T, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeResp[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// createCompleted readies a COMPLETED session through the orchestrator
// so export and role endpoints have something to serve.
func (e *apiEnv) createCompleted(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	sess, err := e.orc.CreateSession(ctx, "u1", "review", "zh-TW", model.ProviderAuto)
	require.NoError(t, err)
	grant, err := e.orc.RequestUploadURL(ctx, sess.ID, "u1", "call.mp3", 5)
	require.NoError(t, err)
	e.blob.Put(grant.BlobPath, 5<<20)
	_, err = e.orc.ConfirmUpload(ctx, sess.ID, "u1")
	require.NoError(t, err)
	_, err = e.orc.StartTranscription(ctx, sess.ID, "u1")
	require.NoError(t, err)
	require.NoError(t, e.orc.Complete(ctx, sess.ID, "u1", &stt.Result{
		ProviderJobID: "batch-1",
		Segments: []stt.Segment{
			{SpeakerID: 1, StartSeconds: 0, EndSeconds: 4, Content: "我們開始吧。", Confidence: 0.9},
			{SpeakerID: 2, StartSeconds: 4, EndSeconds: 9, Content: "好的。", Confidence: 0.85},
		},
		DurationSeconds: 9,
		SpeakerCount:    2,
		MeanConfidence:  0.875,
	}))
	return sess.ID
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.doAs(t, "", http.MethodGet, "/v1/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeResp[errorBody](t, rec)
	assert.Equal(t, "UNAUTHENTICATED", body.Code)
}

func TestCreateAndFetchSession(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"kickoff","language":"zh-TW"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	created := decodeResp[model.Session](t, rec)
	assert.Equal(t, "kickoff", created.Title)
	assert.Equal(t, model.StatusUploading, created.Status)

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeResp[model.Session](t, rec)
	assert.Equal(t, created.ID, fetched.ID)

	rec = env.do(t, http.MethodPost, "/v1/sessions", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(model.RInvalidFormat), decodeResp[errorBody](t, rec).Code)
}

func TestListSessions(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "empty list, never null")

	for i := 0; i < 3; i++ {
		rec = env.do(t, http.MethodPost, "/v1/sessions", fmt.Sprintf(`{"title":"call %d"}`, i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/sessions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeResp[[]model.Session](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/v1/sessions?status=DONE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnershipIsolation(t *testing.T) {
	env := newAPIEnv(t)
	require.NoError(t, env.store.PutUser(context.Background(), &model.User{
		ID: "eve", Email: "eve@example.com", Plan: model.PlanFree, Role: model.RoleUser,
		CurrentMonthStart: model.MonthStartUTC(time.Now()),
	}))

	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"private"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	rec = env.doAs(t, "eve", http.MethodGet, "/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(model.RNotFound), decodeResp[errorBody](t, rec).Code)
}

func TestUploadAndTranscribeFlow(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"flow"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	// Start before audio is a conflict.
	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/transcribe", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/upload-url", `{"filename":"call.mp3","sizeMb":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	grant := decodeResp[orchestrator.UploadGrant](t, rec)
	assert.NotEmpty(t, grant.URL)

	env.blob.Put(grant.BlobPath, 5<<20)
	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/confirm-upload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResp[orchestrator.ConfirmResult](t, rec).Ready)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/transcribe", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	start := decodeResp[orchestrator.StartResult](t, rec)
	assert.NotEmpty(t, start.JobID)

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decodeResp[orchestrator.StatusReport](t, rec)
	assert.Equal(t, model.StatusProcessing, rep.Status)
}

func TestUploadURLRejections(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"limits"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/upload-url", `{"filename":"notes.pdf","sizeMb":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// PRO allows 200 MB per file.
	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/upload-url", `{"filename":"huge.wav","sizeMb":250}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, string(model.RFileTooLarge), decodeResp[errorBody](t, rec).Code)
}

func TestExportEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createCompleted(t)

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/speaker-roles", `{"1":"coach","2":"client"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/export?format=srt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="transcript.srt"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "教練: 我們開始吧。")

	// No format means JSON.
	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="transcript.json"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/export?format=docx", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportBeforeCompletionConflicts(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"early"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+id+"/export", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(model.RTranscriptUnavailable), decodeResp[errorBody](t, rec).Code)
}

func TestSpeakerRoleValidation(t *testing.T) {
	env := newAPIEnv(t)
	id := env.createCompleted(t)

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+id+"/speaker-roles", `{"one":"coach"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/sessions/"+id+"/speaker-roles", `{"1":"observer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTranscriptEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"manual"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	payload := map[string]string{
		"filename": "session.vtt",
		"content":  "WEBVTT\n\n00:00:00.000 --> 00:00:05.000\n<v Speaker 1>我們開始吧。\n",
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/transcript", string(raw))
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decodeResp[model.Session](t, rec)
	assert.Equal(t, model.StatusCompleted, sess.Status)
	assert.Equal(t, 5.0, sess.DurationSeconds)
}

func TestCancelEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"title":"stop me"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeResp[model.Session](t, rec).ID

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+id+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCancelled, decodeResp[model.Session](t, rec).Status)
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.doAs(t, "", http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.doAs(t, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.Readiness["store"] = failingChecker{}
	rec = env.doAs(t, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("down") }
