// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
)

// Authentication lives in the edge proxy; the verified account id
// arrives in this header.
const headerUserID = "X-User-ID"

func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(headerUserID)
	if owner == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "missing user identity"})
		return "", false
	}
	return owner, true
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, lifecycle.NewReasonError(model.RInvalidFormat, "malformed JSON body", err))
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body struct {
		Title    string         `json:"title"`
		Language string         `json:"language"`
		Provider model.Provider `json:"provider"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.Orc.CreateSession(r.Context(), owner, body.Title, body.Language, body.Provider)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var status *model.SessionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := model.SessionStatus(v)
		if !st.Valid() {
			writeError(w, r, lifecycle.NewReasonError(model.RInvalidFormat, "unknown status "+v, nil))
			return
		}
		status = &st
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sessions, err := s.Orc.ListSessions(r.Context(), owner, status, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	sess, err := s.Orc.GetSession(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRequestUploadURL(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body struct {
		Filename string  `json:"filename"`
		SizeMB   float64 `json:"sizeMb"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	grant, err := s.Orc.RequestUploadURL(s.sessionCtx(r), sessionID(r), owner, body.Filename, body.SizeMB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (s *Server) handleConfirmUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	res, err := s.Orc.ConfirmUpload(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartTranscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	res, err := s.Orc.StartTranscription(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleRetryTranscription(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	res, err := s.Orc.RetryTranscription(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	sess, err := s.Orc.Cancel(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	rep, err := s.Orc.GetStatus(s.sessionCtx(r), sessionID(r), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	format := model.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = model.FormatJSON
	}
	data, contentType, err := s.Orc.ExportTranscript(s.sessionCtx(r), sessionID(r), owner, format)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="transcript.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handlePutSpeakerRoles(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body map[string]model.SpeakerRole
	if !decodeBody(w, r, &body) {
		return
	}
	roles := make(map[int]model.SpeakerRole, len(body))
	for k, v := range body {
		id, err := strconv.Atoi(k)
		if err != nil {
			writeError(w, r, lifecycle.NewReasonError(model.RInvalidFormat, "speaker id "+k+" is not a number", err))
			return
		}
		roles[id] = v
	}
	if err := s.Orc.PutSpeakerRoles(s.sessionCtx(r), sessionID(r), owner, roles); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePutSegmentRoles(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body map[string]model.SpeakerRole
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.Orc.PutSegmentRoles(s.sessionCtx(r), sessionID(r), owner, body); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUploadTranscript(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var body struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sess, err := s.Orc.UploadTranscript(s.sessionCtx(r), sessionID(r), owner, body.Filename, []byte(body.Content))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// sessionCtx stamps the session id into the log context.
func (s *Server) sessionCtx(r *http.Request) context.Context {
	return log.ContextWithSessionID(r.Context(), sessionID(r))
}
