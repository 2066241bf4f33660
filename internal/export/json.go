// SPDX-License-Identifier: MIT

package export

import (
	"encoding/json"
	"strconv"
)

type jsonSegment struct {
	ID           string  `json:"segmentId"`
	SpeakerID    int     `json:"speakerId"`
	Role         string  `json:"role,omitempty"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Content      string  `json:"content"`
	Confidence   float64 `json:"confidence,omitempty"`
}

type jsonDocument struct {
	SessionID       string            `json:"sessionId"`
	Title           string            `json:"title"`
	Language        string            `json:"language"`
	Provider        string            `json:"provider,omitempty"`
	DurationSeconds float64           `json:"durationSeconds"`
	SpeakerRoles    map[string]string `json:"speakerRoles,omitempty"`
	Segments        []jsonSegment     `json:"segments"`
}

func renderJSON(t *Transcript) ([]byte, error) {
	doc := jsonDocument{
		SessionID:       t.Session.ID,
		Title:           t.Session.Title,
		Language:        t.Session.Language,
		Provider:        string(t.Session.ResolvedProvider),
		DurationSeconds: t.Session.DurationSeconds,
		Segments:        make([]jsonSegment, 0, len(t.Segments)),
	}
	if len(t.SessionRoles) > 0 {
		doc.SpeakerRoles = make(map[string]string, len(t.SessionRoles))
		for speakerID, role := range t.SessionRoles {
			doc.SpeakerRoles[strconv.Itoa(speakerID)] = string(role)
		}
	}
	for _, seg := range t.Segments {
		js := jsonSegment{
			ID:           seg.ID,
			SpeakerID:    seg.SpeakerID,
			Role:         string(t.RoleFor(seg)),
			StartSeconds: seg.StartSeconds,
			EndSeconds:   seg.EndSeconds,
			Content:      seg.Content,
		}
		if seg.ConfidenceKnown() {
			js.Confidence = seg.Confidence
		}
		doc.Segments = append(doc.Segments, js)
	}
	return json.MarshalIndent(doc, "", "  ")
}
