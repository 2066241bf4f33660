// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/store"
)

// PutSpeakerRoles assigns coach/client roles per diarized speaker.
// Role overlays are only writable once the session is COMPLETED.
func (o *Orchestrator) PutSpeakerRoles(ctx context.Context, id, ownerID string, roles map[int]model.SpeakerRole) error {
	sess, err := o.roleTarget(ctx, id, ownerID)
	if err != nil {
		return err
	}
	for speakerID, role := range roles {
		if speakerID <= 0 {
			return lifecycle.NewReasonError(model.RInvalidFormat,
				fmt.Sprintf("speaker id %d must be positive", speakerID), nil)
		}
		if !role.Valid() {
			return lifecycle.NewReasonError(model.RInvalidFormat,
				fmt.Sprintf("unknown role %q", role), nil)
		}
	}
	return o.Store.PutSessionRoles(ctx, sess.ID, roles)
}

// PutSegmentRoles overrides the role of individual segments. A segment
// override wins over the speaker-level role on export.
func (o *Orchestrator) PutSegmentRoles(ctx context.Context, id, ownerID string, roles map[string]model.SpeakerRole) error {
	sess, err := o.roleTarget(ctx, id, ownerID)
	if err != nil {
		return err
	}
	for segmentID, role := range roles {
		if segmentID == "" {
			return lifecycle.NewReasonError(model.RInvalidFormat, "empty segment id", nil)
		}
		if !role.Valid() {
			return lifecycle.NewReasonError(model.RInvalidFormat,
				fmt.Sprintf("unknown role %q", role), nil)
		}
	}
	err = o.Store.PutSegmentRoles(ctx, sess.ID, roles)
	if errors.Is(err, store.ErrNotFound) {
		return lifecycle.NewReasonError(model.RNotFound, "segment not in session", err)
	}
	return err
}

func (o *Orchestrator) roleTarget(ctx context.Context, id, ownerID string) (*model.Session, error) {
	sess, err := o.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.StatusCompleted {
		return nil, lifecycle.NewReasonError(model.RStateConflict,
			fmt.Sprintf("roles are editable on COMPLETED sessions only, session is %s", sess.Status), nil)
	}
	return sess, nil
}
