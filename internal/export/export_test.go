// SPDX-License-Identifier: MIT

package export

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
)

func sampleTranscript() *Transcript {
	return &Transcript{
		Session: &model.Session{
			ID:               "s1",
			Title:            "Week 3 review",
			Language:         "zh-TW",
			ResolvedProvider: model.ProviderAssemblyAI,
			DurationSeconds:  12.5,
		},
		Segments: []model.TranscriptSegment{
			{ID: "g1", SessionID: "s1", SpeakerID: 1, StartSeconds: 0, EndSeconds: 5.2, Content: "這週過得如何?", Confidence: 0.95},
			{ID: "g2", SessionID: "s1", SpeakerID: 2, StartSeconds: 5.2, EndSeconds: 12.5, Content: "比我預期的好。", Confidence: 0.9},
		},
		SessionRoles: map[int]model.SpeakerRole{1: model.RoleCoach, 2: model.RoleClient},
	}
}

func TestRoleForPrecedence(t *testing.T) {
	tr := sampleTranscript()
	assert.Equal(t, model.RoleCoach, tr.RoleFor(tr.Segments[0]))

	// A segment-level override beats the speaker mapping.
	tr.SegmentRoles = map[string]model.SpeakerRole{"g1": model.RoleClient}
	assert.Equal(t, model.RoleClient, tr.RoleFor(tr.Segments[0]))
	assert.Equal(t, model.RoleClient, tr.RoleFor(tr.Segments[1]))

	// No mapping at all resolves to unknown.
	tr.SessionRoles = nil
	tr.SegmentRoles = nil
	assert.Equal(t, model.SpeakerRole(""), tr.RoleFor(tr.Segments[0]))
}

func TestRenderJSON(t *testing.T) {
	data, contentType, err := Render(sampleTranscript(), model.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "s1", doc["sessionId"])
	assert.Equal(t, 12.5, doc["durationSeconds"])

	segs := doc["segments"].([]any)
	require.Len(t, segs, 2)
	first := segs[0].(map[string]any)
	assert.Equal(t, "coach", first["role"])
	assert.Equal(t, 0.95, first["confidence"])
}

func TestRenderVTT(t *testing.T) {
	data, contentType, err := Render(sampleTranscript(), model.FormatVTT)
	require.NoError(t, err)
	assert.Equal(t, "text/vtt", contentType)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, "WEBVTT\n\n"))
	assert.Contains(t, s, "00:00:00.000 --> 00:00:05.200")
	assert.Contains(t, s, "<v 教練>這週過得如何?</v>")
	assert.Contains(t, s, "<v 客戶>比我預期的好。</v>")
}

func TestRenderSRT(t *testing.T) {
	data, contentType, err := Render(sampleTranscript(), model.FormatSRT)
	require.NoError(t, err)
	assert.Equal(t, "application/x-subrip", contentType)

	s := string(data)
	assert.Contains(t, s, "1\n00:00:00,000 --> 00:00:05,200\n教練: 這週過得如何?")
	assert.Contains(t, s, "2\n00:00:05,200 --> 00:00:12,500\n客戶: 比我預期的好。")
}

func TestRenderTXTGroupsByRole(t *testing.T) {
	tr := sampleTranscript()
	tr.Segments = append(tr.Segments, model.TranscriptSegment{
		ID: "g3", SessionID: "s1", SpeakerID: 2, StartSeconds: 12.5, EndSeconds: 15, Content: "睡眠也改善了。", Confidence: 0.9,
	})
	data, contentType, err := Render(tr, model.FormatTXT)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", contentType)

	s := string(data)
	assert.True(t, strings.HasPrefix(s, "Week 3 review\n=============\n"))
	// Consecutive client segments share one header.
	assert.Equal(t, 1, strings.Count(s, "[客戶]"))
	assert.Contains(t, s, "比我預期的好。\n睡眠也改善了。")
}

func TestRenderXLSX(t *testing.T) {
	data, contentType, err := Render(sampleTranscript(), model.FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", contentType)
	// XLSX files are zip archives.
	require.Greater(t, len(data), 4)
	assert.Equal(t, []byte{'P', 'K'}, data[:2])
}

func TestRenderUnknownFormat(t *testing.T) {
	_, _, err := Render(sampleTranscript(), model.ExportFormat("docx"))
	require.Error(t, err)
	assert.Equal(t, model.RInvalidFormat, lifecycle.ReasonOf(err))
}

func TestVTTRoundTrip(t *testing.T) {
	tr := sampleTranscript()
	data, _, err := Render(tr, model.FormatVTT)
	require.NoError(t, err)

	segs, err := ParseVTT(data)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "這週過得如何?", segs[0].Content)
	assert.InDelta(t, 0, segs[0].StartSeconds, 0.001)
	assert.InDelta(t, 5.2, segs[0].EndSeconds, 0.001)
	assert.InDelta(t, 12.5, segs[1].EndSeconds, 0.001)
	// Distinct labels get distinct speaker ids.
	assert.NotEqual(t, segs[0].SpeakerID, segs[1].SpeakerID)
	assert.False(t, segs[0].ConfidenceKnown(), "parsed cues carry no confidence")
}

func TestSRTRoundTrip(t *testing.T) {
	tr := sampleTranscript()
	data, _, err := Render(tr, model.FormatSRT)
	require.NoError(t, err)

	segs, err := ParseSRT(data)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "比我預期的好。", segs[1].Content)
	assert.InDelta(t, 5.2, segs[1].StartSeconds, 0.001)
}

func TestParseSpeakerLabels(t *testing.T) {
	vtt := "WEBVTT\n\n1\n00:00.000 --> 00:03.000\n<v Speaker 2>hello there\n\n2\n00:03.000 --> 00:05.000\nAnna: hi\n\n3\n00:05.000 --> 00:07.000\nno label at all\n"
	segs, err := ParseVTT([]byte(vtt))
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.Equal(t, 2, segs[0].SpeakerID, "Speaker N labels keep their number")
	assert.Equal(t, "hello there", segs[0].Content)
	assert.Equal(t, "hi", segs[1].Content)
	assert.Equal(t, "no label at all", segs[2].Content)
	assert.Equal(t, 1, segs[2].SpeakerID, "unlabeled cues default to speaker 1")
}

func TestParseTranscriptRejectsUnknownExtension(t *testing.T) {
	_, err := ParseTranscript("notes.txt", []byte("hello"))
	require.Error(t, err)
	assert.Equal(t, model.RInvalidFormat, lifecycle.ReasonOf(err))
}

func TestParseRejectsMalformedCues(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		_, err := ParseVTT([]byte("WEBVTT\n\n"))
		require.Error(t, err)
		assert.Equal(t, model.RInvalidFormat, lifecycle.ReasonOf(err))
	})
	t.Run("end before start", func(t *testing.T) {
		_, err := ParseVTT([]byte("WEBVTT\n\n1\n00:00:10.000 --> 00:00:05.000\nbackwards\n"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, lifecycle.ErrValidation))
	})
	t.Run("garbage timestamp", func(t *testing.T) {
		_, err := ParseVTT([]byte("WEBVTT\n\n1\nabc --> def\nwords\n"))
		require.Error(t, err)
	})
}

func TestParseSRTWithCueSettings(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:04,000 X1:40 X2:600\nline one\n\n"
	segs, err := ParseSRT([]byte(srt))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.InDelta(t, 4, segs[0].EndSeconds, 0.001)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00.000", formatTimestamp(0, '.'))
	assert.Equal(t, "01:01:01,500", formatTimestamp(3661.5, ','))
	assert.Equal(t, "00:00:01.000", formatTimestamp(0.9999, '.'), "millisecond carry rolls the second")
	assert.Equal(t, "00:00:00.000", formatTimestamp(-3, '.'), "negative clamps to zero")
}
