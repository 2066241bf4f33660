// SPDX-License-Identifier: MIT

package lifecycle

import (
	"errors"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

var (
	ErrNotFound              = errors.New("session not found")
	ErrStateConflict         = errors.New("state conflict")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrValidation            = errors.New("invalid request")
	ErrAudioMissing          = errors.New("audio object missing")
	ErrUpstreamFailed        = errors.New("upstream provider failed")
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	ErrInfrastructure        = errors.New("infrastructure failure")
)

// ReasonErrorClass maps a stable reason code to its sentinel class so
// callers can errors.Is against behaviour, not wording.
func ReasonErrorClass(reason model.ReasonCode) error {
	switch reason {
	case model.RNotFound:
		return ErrNotFound
	case model.RStateConflict:
		return ErrStateConflict
	case model.RQuotaExceeded, model.RFileTooLarge:
		return ErrQuotaExceeded
	case model.RInvalidFormat, model.RLangNotSupported:
		return ErrValidation
	case model.RAudioMissing:
		return ErrAudioMissing
	case model.RUpstreamFailed, model.RWorkerLost:
		return ErrUpstreamFailed
	case model.RTranscriptUnavailable:
		return ErrTranscriptUnavailable
	case model.RNone:
		return nil
	default:
		return ErrInfrastructure
	}
}
