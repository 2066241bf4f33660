// SPDX-License-Identifier: MIT

// Package google implements the stt.Backend contract on Google Cloud
// Speech-to-Text long-running recognition with speaker diarization.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/stt"
)

// Backend drives Google STT. Jobs are addressed by the long-running
// operation name, so no per-job state lives in the process.
type Backend struct {
	client *speech.Client
}

func New(ctx context.Context) (*Backend, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("google stt: client: %w", err)
	}
	return &Backend{client: client}, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func (b *Backend) Name() model.Provider {
	return model.ProviderGoogle
}

// SupportsLanguageDetection is false: the v1 batch API requires an
// explicit language code.
func (b *Backend) SupportsLanguageDetection() bool {
	return false
}

func (b *Backend) StartJob(ctx context.Context, req stt.Request) (string, error) {
	diarization := &speechpb.SpeakerDiarizationConfig{
		EnableSpeakerDiarization: true,
		MinSpeakerCount:          1,
		MaxSpeakerCount:          6,
	}
	if req.SpeakerHint > 0 {
		diarization.MaxSpeakerCount = int32(req.SpeakerHint)
	}

	op, err := b.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               req.Language,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
			EnableWordConfidence:       true,
			DiarizationConfig:          diarization,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: req.AudioURI},
		},
	})
	if err != nil {
		return "", startErr(err)
	}
	return op.Name(), nil
}

// startErr tags deterministic API rejections with a reason code so the
// worker's retry policy fails fast instead of replaying them.
func startErr(err error) error {
	wrapped := fmt.Errorf("google stt: start: %w", err)
	switch status.Code(err) {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return lifecycle.NewReasonError(model.RInvalidFormat, "provider rejected the request", wrapped)
	case codes.NotFound:
		return lifecycle.NewReasonError(model.RAudioMissing, "audio object unreachable by the provider", wrapped)
	}
	return wrapped
}

func (b *Backend) PollJob(ctx context.Context, jobID string) (stt.JobStatus, error) {
	op := b.client.LongRunningRecognizeOperation(jobID)
	if _, err := op.Poll(ctx); err != nil {
		if op.Done() {
			return stt.JobStatus{Done: true, Failed: true, ProgressPct: -1, Message: err.Error()}, nil
		}
		return stt.JobStatus{}, fmt.Errorf("google stt: poll: %w", err)
	}

	status := stt.JobStatus{Done: op.Done(), ProgressPct: -1}
	if meta, err := op.Metadata(); err == nil && meta != nil {
		status.ProgressPct = int(meta.GetProgressPercent())
	}
	return status, nil
}

func (b *Backend) FetchResult(ctx context.Context, jobID string) (*stt.Result, error) {
	op := b.client.LongRunningRecognizeOperation(jobID)
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("google stt: fetch: %w", err)
	}
	return normalize(jobID, resp), nil
}

// CancelJob is a no-op: the v1 API has no cancel for recognition
// operations, the job just runs out. The worker stops polling.
func (b *Backend) CancelJob(_ context.Context, _ string) error {
	return nil
}

// normalize converts the word-level diarization stream to segments.
// When diarization is on, the final result repeats every word with a
// speaker tag; consecutive words with one tag become a segment and the
// segment confidence is the word mean.
func normalize(jobID string, resp *speechpb.LongRunningRecognizeResponse) *stt.Result {
	words := diarizedWords(resp)
	result := &stt.Result{ProviderJobID: jobID}

	var current *stt.Segment
	var text []string
	var confSum float64
	var confN int

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.Join(text, " ")
		if confN > 0 {
			current.Confidence = confSum / float64(confN)
		} else {
			current.Confidence = -1
		}
		if strings.TrimSpace(current.Content) != "" {
			result.Segments = append(result.Segments, *current)
		}
		current, text, confSum, confN = nil, nil, 0, 0
	}

	for _, w := range words {
		speaker := int(w.GetSpeakerTag())
		if speaker < 1 {
			speaker = 1
		}
		start := w.GetStartTime().AsDuration().Seconds()
		end := w.GetEndTime().AsDuration().Seconds()

		if current == nil || current.SpeakerID != speaker {
			flush()
			current = &stt.Segment{SpeakerID: speaker, StartSeconds: start, EndSeconds: end}
		}
		if end > current.EndSeconds {
			current.EndSeconds = end
		}
		text = append(text, w.GetWord())
		if c := w.GetConfidence(); c > 0 {
			confSum += float64(c)
			confN++
		}
		result.WordCount++
	}
	flush()

	if n := len(result.Segments); n > 0 {
		result.DurationSeconds = result.Segments[n-1].EndSeconds
	}
	result.SpeakerCount = stt.CountSpeakers(result.Segments)
	result.MeanConfidence = stt.MeanConfidence(result.Segments)
	return result
}

// diarizedWords returns the authoritative word list. With diarization
// enabled the last result carries the full tagged transcript; without
// it, the per-result words are concatenated.
func diarizedWords(resp *speechpb.LongRunningRecognizeResponse) []*speechpb.WordInfo {
	results := resp.GetResults()
	if len(results) == 0 {
		return nil
	}
	last := results[len(results)-1]
	if alts := last.GetAlternatives(); len(alts) > 0 && len(alts[0].GetWords()) > 0 && alts[0].GetWords()[0].GetSpeakerTag() > 0 {
		return alts[0].GetWords()
	}

	var words []*speechpb.WordInfo
	for _, res := range results {
		if alts := res.GetAlternatives(); len(alts) > 0 {
			words = append(words, alts[0].GetWords()...)
		}
	}
	return words
}
