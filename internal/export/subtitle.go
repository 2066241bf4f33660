// SPDX-License-Identifier: MIT

package export

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// renderVTT writes WebVTT with voice tags carrying the speaker label.
// Timestamps are HH:MM:SS.mmm.
func renderVTT(t *Transcript) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, seg := range t.Segments {
		label := roleLabelZH(t.RoleFor(seg), seg.SpeakerID)
		fmt.Fprintf(&b, "%d\n%s --> %s\n<v %s>%s</v>\n\n",
			i+1,
			formatTimestamp(seg.StartSeconds, '.'),
			formatTimestamp(seg.EndSeconds, '.'),
			label, seg.Content)
	}
	return []byte(b.String())
}

// renderSRT writes SubRip with a "label: content" line per cue.
// Timestamps are HH:MM:SS,mmm.
func renderSRT(t *Transcript) []byte {
	var b strings.Builder
	for i, seg := range t.Segments {
		label := roleLabelZH(t.RoleFor(seg), seg.SpeakerID)
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s: %s\n\n",
			i+1,
			formatTimestamp(seg.StartSeconds, ','),
			formatTimestamp(seg.EndSeconds, ','),
			label, seg.Content)
	}
	return []byte(b.String())
}

func formatTimestamp(seconds float64, msSep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	ms := int((seconds - float64(total)) * 1000.0 + 0.5)
	if ms >= 1000 {
		total++
		ms -= 1000
	}
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", total/3600, (total%3600)/60, total%60, msSep, ms)
}

// ParseTranscript parses an uploaded .vtt or .srt file into segments.
// Speaker ids come from the cue labels: "Speaker N" maps to N, any
// other distinct label is numbered in order of first appearance.
func ParseTranscript(filename string, content []byte) ([]model.TranscriptSegment, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".vtt"):
		return parseCues(content)
	case strings.HasSuffix(strings.ToLower(filename), ".srt"):
		return parseCues(content)
	default:
		return nil, lifecycle.NewReasonError(model.RInvalidFormat,
			"transcript upload accepts .vtt or .srt, got "+filename, nil)
	}
}

// ParseVTT parses WebVTT content.
func ParseVTT(content []byte) ([]model.TranscriptSegment, error) {
	return parseCues(content)
}

// ParseSRT parses SubRip content.
func ParseSRT(content []byte) ([]model.TranscriptSegment, error) {
	return parseCues(content)
}

type speakerAssigner struct {
	byLabel map[string]int
	next    int
}

func (a *speakerAssigner) idFor(label string) int {
	if label == "" {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(label, "Speaker %d", &n); err == nil && n > 0 {
		return n
	}
	if a.byLabel == nil {
		a.byLabel = make(map[string]int)
	}
	if id, ok := a.byLabel[label]; ok {
		return id
	}
	a.next++
	a.byLabel[label] = a.next
	return a.next
}

func parseCues(content []byte) ([]model.TranscriptSegment, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var segments []model.TranscriptSegment
	var assigner speakerAssigner
	var start, end float64
	var haveSpan bool
	var textLines []string

	flush := func() {
		if !haveSpan || len(textLines) == 0 {
			haveSpan = false
			textLines = nil
			return
		}
		label, text := splitSpeaker(strings.Join(textLines, " "))
		if text != "" {
			segments = append(segments, model.TranscriptSegment{
				SpeakerID:    assigner.idFor(label),
				StartSeconds: start,
				EndSeconds:   end,
				Content:      text,
				Confidence:   -1,
			})
		}
		haveSpan = false
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE"):
			// header material
		case strings.Contains(line, "-->"):
			s, e, err := parseSpan(line)
			if err != nil {
				return nil, err
			}
			start, end = s, e
			haveSpan = true
		case haveSpan:
			textLines = append(textLines, line)
		default:
			// cue number or stray identifier, ignore
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, lifecycle.NewReasonError(model.RInvalidFormat, "unreadable transcript file", err)
	}
	if len(segments) == 0 {
		return nil, lifecycle.NewReasonError(model.RInvalidFormat, "transcript file contains no cues", nil)
	}
	return segments, nil
}

// splitSpeaker strips a voice tag (<v Label>text</v>) or a
// "Label: text" prefix, returning the label and the bare text.
func splitSpeaker(line string) (label, text string) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "<v ") {
		rest := line[len("<v "):]
		if i := strings.Index(rest, ">"); i >= 0 {
			label = strings.TrimSpace(rest[:i])
			text = strings.TrimSuffix(strings.TrimSpace(rest[i+1:]), "</v>")
			return label, strings.TrimSpace(text)
		}
	}
	if i := strings.Index(line, ": "); i > 0 && i < 40 {
		return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+2:])
	}
	return "", line
}

func parseSpan(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, lifecycle.NewReasonError(model.RInvalidFormat, "malformed cue timing "+line, nil)
	}
	// SRT timing lines may carry cue settings after the end stamp.
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, lifecycle.NewReasonError(model.RInvalidFormat, "malformed cue timing "+line, nil)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, lifecycle.NewReasonError(model.RInvalidFormat,
			fmt.Sprintf("cue ends at %.3f before it starts at %.3f", end, start), nil)
	}
	return start, end, nil
}

func parseTimestamp(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, lifecycle.NewReasonError(model.RInvalidFormat, "malformed timestamp "+s, nil)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, lifecycle.NewReasonError(model.RInvalidFormat, "malformed timestamp "+s, err)
		}
		total = total*60 + v
	}
	return total, nil
}
