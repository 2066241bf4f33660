// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/coachscribe/coachscribe/internal/blob"
	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
	"github.com/coachscribe/coachscribe/internal/quota"
)

var audioFilenamePattern = regexp.MustCompile(`^[^/\\]+\.(mp3|wav|flac|ogg|mp4|m4a)$`)

// UploadGrant is a scoped, time-bounded permission to write one object.
type UploadGrant struct {
	URL      string    `json:"uploadUrl"`
	BlobPath string    `json:"blobPath"`
	Expiry   time.Time `json:"expiresAt"`
}

// ConfirmResult reports whether the audio object landed.
type ConfirmResult struct {
	Exists    bool  `json:"exists"`
	SizeBytes int64 `json:"sizeBytes"`
	Ready     bool  `json:"ready"`
}

// RequestUploadURL issues a signed write URL for the session's audio.
// A FAILED session is reset to UPLOADING first so the new upload
// starts a clean progression.
func (o *Orchestrator) RequestUploadURL(ctx context.Context, id, ownerID, filename string, sizeMB float64) (*UploadGrant, error) {
	if !audioFilenamePattern.MatchString(strings.ToLower(filename)) {
		return nil, lifecycle.NewReasonError(model.RInvalidFormat, "unsupported audio filename "+filename, nil)
	}

	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.StatusUploading, model.StatusFailed:
	default:
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("upload url not available in %s", sess.Status), nil)
	}

	user, err := o.user(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := o.admit(ctx, user, quota.ActionUploadFile, sizeMB); err != nil {
		return nil, err
	}

	if sess.Status == model.StatusFailed {
		sess, err = o.transition(ctx, sess, lifecycle.EvUploadReset, func(s *model.Session) {
			s.AudioFilename = ""
			s.BlobPath = ""
			s.AudioSizeMB = 0
			s.DurationSeconds = 0
			s.TranscriptionJobID = ""
			s.ProviderBatchID = ""
			s.ProgressPct = 0
			s.ErrorMessage = ""
			s.ManualTranscript = false
		})
		if err != nil {
			return nil, err
		}
	}

	objectPath := blob.AudioPath(ownerID, id, filename)
	url, expiry, err := o.Blob.GenerateWriteURL(ctx, objectPath, blob.ContentTypeFor(filename), o.UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign upload url: %w", err)
	}

	// Record the intended path and filename; the session stays in
	// UPLOADING until the upload is confirmed.
	if _, err := o.Store.UpdateSession(ctx, id, ownerID, func(s *model.Session) error {
		s.AudioFilename = filename
		s.BlobPath = objectPath
		s.AudioSizeMB = sizeMB
		return nil
	}); err != nil {
		return nil, err
	}

	logger := log.WithComponentFromContext(ctx, "orchestrator")
	logger.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldBlobPath, objectPath).
		Float64("size_mb", sizeMB).
		Msg("upload url issued")
	return &UploadGrant{URL: url, BlobPath: objectPath, Expiry: expiry}, nil
}

// ConfirmUpload probes the audio object and, when present, advances
// UPLOADING to PENDING. Re-confirming a PENDING session is a no-op
// that reports the same result.
func (o *Orchestrator) ConfirmUpload(ctx context.Context, id, ownerID string) (*ConfirmResult, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.BlobPath == "" {
		return nil, lifecycle.NewReasonError(model.RAudioMissing, "no upload url was issued", nil)
	}

	exists, size, err := o.Blob.Exists(ctx, sess.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("probe audio object: %w", err)
	}
	if !exists {
		return &ConfirmResult{}, nil
	}

	if sess.Status == model.StatusUploading {
		if _, err := o.transition(ctx, sess, lifecycle.EvAudioAttached, func(s *model.Session) {
			s.ErrorMessage = ""
		}); err != nil {
			return nil, err
		}
	}
	return &ConfirmResult{Exists: true, SizeBytes: size, Ready: true}, nil
}
