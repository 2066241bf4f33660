// SPDX-License-Identifier: MIT

// Package assemblyai implements the stt.Backend contract on the
// AssemblyAI transcript API: submit by URL, poll until done, read the
// diarized utterances.
package assemblyai

import (
	"context"
	"fmt"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/stt"
)

// Backend drives AssemblyAI. Jobs are addressed by the transcript id.
type Backend struct {
	client *aai.Client
}

func New(apiKey string) *Backend {
	return &Backend{client: aai.NewClient(apiKey)}
}

func (b *Backend) Name() model.Provider {
	return model.ProviderAssemblyAI
}

// SupportsLanguageDetection is true: the API detects the language when
// no code is pinned.
func (b *Backend) SupportsLanguageDetection() bool {
	return true
}

func (b *Backend) StartJob(ctx context.Context, req stt.Request) (string, error) {
	params := &aai.TranscriptOptionalParams{
		SpeakerLabels: aai.Bool(true),
		Punctuate:     aai.Bool(true),
		FormatText:    aai.Bool(true),
	}
	if req.Language == "auto" || req.Language == "" {
		params.LanguageDetection = aai.Bool(true)
	} else {
		params.LanguageCode = aai.TranscriptLanguageCode(languageCode(req.Language))
	}
	if req.SpeakerHint > 0 {
		params.SpeakersExpected = aai.Int64(int64(req.SpeakerHint))
	}

	transcript, err := b.client.Transcripts.SubmitFromURL(ctx, req.AudioURI, params)
	if err != nil {
		return "", fmt.Errorf("assemblyai: submit: %w", err)
	}
	return aai.ToString(transcript.ID), nil
}

func (b *Backend) PollJob(ctx context.Context, jobID string) (stt.JobStatus, error) {
	transcript, err := b.client.Transcripts.Get(ctx, jobID)
	if err != nil {
		return stt.JobStatus{}, fmt.Errorf("assemblyai: poll: %w", err)
	}
	switch transcript.Status {
	case aai.TranscriptStatusCompleted:
		return stt.JobStatus{Done: true, ProgressPct: 100}, nil
	case aai.TranscriptStatusError:
		return stt.JobStatus{Done: true, Failed: true, ProgressPct: -1, Message: aai.ToString(transcript.Error)}, nil
	default:
		// The API exposes no percentage while queued or processing.
		return stt.JobStatus{ProgressPct: -1}, nil
	}
}

func (b *Backend) FetchResult(ctx context.Context, jobID string) (*stt.Result, error) {
	transcript, err := b.client.Transcripts.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: fetch: %w", err)
	}
	if transcript.Status != aai.TranscriptStatusCompleted {
		return nil, fmt.Errorf("assemblyai: transcript %s not completed (status %s)", jobID, transcript.Status)
	}
	return normalize(jobID, &transcript), nil
}

func (b *Backend) CancelJob(ctx context.Context, jobID string) error {
	if _, err := b.client.Transcripts.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("assemblyai: cancel: %w", err)
	}
	return nil
}

func normalize(jobID string, transcript *aai.Transcript) *stt.Result {
	result := &stt.Result{
		ProviderJobID:   jobID,
		DurationSeconds: aai.ToFloat64(transcript.AudioDuration),
		WordCount:       len(transcript.Words),
	}

	for _, utt := range transcript.Utterances {
		text := strings.TrimSpace(aai.ToString(utt.Text))
		if text == "" {
			continue
		}
		seg := stt.Segment{
			SpeakerID:    speakerNumber(aai.ToString(utt.Speaker)),
			StartSeconds: float64(aai.ToInt64(utt.Start)) / 1000.0,
			EndSeconds:   float64(aai.ToInt64(utt.End)) / 1000.0,
			Content:      text,
			Confidence:   -1,
		}
		if utt.Confidence != nil {
			seg.Confidence = aai.ToFloat64(utt.Confidence)
		}
		result.Segments = append(result.Segments, seg)
	}

	// Monologue fallback when diarization produced no utterances.
	if len(result.Segments) == 0 && aai.ToString(transcript.Text) != "" {
		conf := -1.0
		if transcript.Confidence != nil {
			conf = aai.ToFloat64(transcript.Confidence)
		}
		result.Segments = append(result.Segments, stt.Segment{
			SpeakerID:    1,
			StartSeconds: 0,
			EndSeconds:   result.DurationSeconds,
			Content:      aai.ToString(transcript.Text),
			Confidence:   conf,
		})
	}

	result.SpeakerCount = stt.CountSpeakers(result.Segments)
	result.MeanConfidence = stt.MeanConfidence(result.Segments)
	return result
}

// speakerNumber maps the API's "A", "B", ... labels to 1, 2, ...
func speakerNumber(label string) int {
	label = strings.TrimSpace(strings.ToUpper(label))
	if len(label) == 1 && label[0] >= 'A' && label[0] <= 'Z' {
		return int(label[0]-'A') + 1
	}
	// Some models emit "speaker_0" style labels.
	if idx := strings.LastIndexByte(label, '_'); idx >= 0 {
		n := 0
		for _, r := range label[idx+1:] {
			if r < '0' || r > '9' {
				return 1
			}
			n = n*10 + int(r-'0')
		}
		return n + 1
	}
	return 1
}

// languageCode converts a BCP-47 tag to the API's lower_snake form.
func languageCode(tag string) string {
	return strings.ReplaceAll(strings.ToLower(tag), "-", "_")
}
