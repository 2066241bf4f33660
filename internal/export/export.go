// SPDX-License-Identifier: MIT

// Package export renders a completed transcript into the supported
// interchange formats and parses uploaded subtitle files back into
// segments. Rendering is pure projection: role overlays are applied
// per segment, nothing is mutated.
package export

import (
	"fmt"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// Transcript bundles everything one export needs.
type Transcript struct {
	Session      *model.Session
	Segments     []model.TranscriptSegment
	SessionRoles map[int]model.SpeakerRole
	SegmentRoles map[string]model.SpeakerRole
}

// RoleFor resolves the effective role of a segment: the segment-level
// override wins, then the speaker-level role, then unknown (empty).
func (t *Transcript) RoleFor(seg model.TranscriptSegment) model.SpeakerRole {
	if r, ok := t.SegmentRoles[seg.ID]; ok {
		return r
	}
	if r, ok := t.SessionRoles[seg.SpeakerID]; ok {
		return r
	}
	return ""
}

// Render projects the transcript into the requested format.
func Render(t *Transcript, format model.ExportFormat) ([]byte, string, error) {
	switch format {
	case model.FormatJSON:
		b, err := renderJSON(t)
		return b, "application/json", err
	case model.FormatVTT:
		return renderVTT(t), "text/vtt", nil
	case model.FormatSRT:
		return renderSRT(t), "application/x-subrip", nil
	case model.FormatTXT:
		return renderTXT(t), "text/plain; charset=utf-8", nil
	case model.FormatXLSX:
		b, err := renderXLSX(t)
		return b, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	default:
		return nil, "", lifecycle.NewReasonError(model.RInvalidFormat,
			fmt.Sprintf("unsupported export format %q", format), nil)
	}
}

// Localised role labels. The workbook targets English headers; the
// subtitle and text formats ship the Traditional Chinese labels the
// product uses.
func roleLabelEN(role model.SpeakerRole) string {
	switch role {
	case model.RoleCoach:
		return "Coach"
	case model.RoleClient:
		return "Client"
	default:
		return ""
	}
}

func roleLabelZH(role model.SpeakerRole, speakerID int) string {
	switch role {
	case model.RoleCoach:
		return "教練"
	case model.RoleClient:
		return "客戶"
	default:
		return fmt.Sprintf("Speaker %d", speakerID)
	}
}
