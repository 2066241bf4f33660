// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
)

// errorBody is the stable error envelope. Code is the machine-readable
// identifier; Message is short and safe to show users.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error's reason code to an HTTP status. The raw
// error text stays in the logs; clients get the stable code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reason := lifecycle.ReasonOf(err)
	status := statusFor(reason)
	logger := log.WithComponentFromContext(r.Context(), "api")
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str(log.FieldReason, string(reason)).
			Msg("request failed")
	} else {
		logger.Debug().Err(err).
			Str(log.FieldReason, string(reason)).
			Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Code: string(reason), Message: messageFor(reason)})
}

func statusFor(reason model.ReasonCode) int {
	switch reason {
	case model.RNotFound:
		return http.StatusNotFound
	case model.RStateConflict, model.RTranscriptUnavailable, model.RAudioMissing:
		return http.StatusConflict
	case model.RFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.RQuotaExceeded:
		return http.StatusTooManyRequests
	case model.RInvalidFormat, model.RLangNotSupported:
		return http.StatusBadRequest
	case model.RUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(reason model.ReasonCode) string {
	switch reason {
	case model.RNotFound:
		return "session not found"
	case model.RStateConflict:
		return "the session changed state; re-read and retry"
	case model.RFileTooLarge:
		return "the file exceeds your plan's size limit"
	case model.RAudioMissing:
		return "the audio object is not uploaded yet"
	case model.RLangNotSupported:
		return "the selected provider does not support this language"
	case model.RQuotaExceeded:
		return "monthly quota exhausted"
	case model.RInvalidFormat:
		return "malformed request"
	case model.RTranscriptUnavailable:
		return "no transcript is available for this session"
	case model.RWorkerLost:
		return "the transcription worker was lost"
	case model.RUpstreamFailed:
		return "the transcription provider failed"
	default:
		return "internal error"
	}
}
