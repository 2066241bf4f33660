// SPDX-License-Identifier: MIT

package lifecycle

import (
	"errors"

	"github.com/coachscribe/coachscribe/internal/domain/model"
)

type reasonError struct {
	reason model.ReasonCode
	detail string
	err    error
}

func (e *reasonError) Error() string {
	if e.detail != "" {
		return string(e.reason) + ": " + e.detail
	}
	if e.err != nil {
		return string(e.reason) + ": " + e.err.Error()
	}
	return string(e.reason)
}

func (e *reasonError) Is(target error) bool {
	if target == nil {
		return false
	}
	class := ReasonErrorClass(e.reason)
	return class != nil && target == class
}

func (e *reasonError) Unwrap() error {
	return e.err
}

// NewReasonError wraps err with a stable reason code and an internal
// detail string. The detail is for logs only and never reaches callers
// verbatim.
func NewReasonError(reason model.ReasonCode, detail string, err error) error {
	return &reasonError{reason: reason, detail: detail, err: err}
}

// ReasonOf extracts the stable reason code from an error chain.
// Unrecognised errors classify as infrastructure failures.
func ReasonOf(err error) model.ReasonCode {
	if err == nil {
		return model.RNone
	}
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return model.RNotFound
	case errors.Is(err, ErrStateConflict):
		return model.RStateConflict
	case errors.Is(err, ErrQuotaExceeded):
		return model.RQuotaExceeded
	case errors.Is(err, ErrValidation):
		return model.RInvalidFormat
	case errors.Is(err, ErrAudioMissing):
		return model.RAudioMissing
	case errors.Is(err, ErrUpstreamFailed):
		return model.RUpstreamFailed
	case errors.Is(err, ErrTranscriptUnavailable):
		return model.RTranscriptUnavailable
	default:
		return model.ReasonCode("INTERNAL")
	}
}
