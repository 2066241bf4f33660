// SPDX-License-Identifier: MIT

// Package mock provides a test double for the stt.Backend contract.
//
// Configure Result for the happy path, or queue StartErrs/PollErrs to
// exercise the worker's retry policy. Every call is recorded so tests
// can assert on the exact provider interaction.
package mock

import (
	"context"
	"sync"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/stt"
)

// Backend is a scriptable stt.Backend.
type Backend struct {
	mu sync.Mutex

	// Provider is the name reported by Name; defaults to assemblyai.
	Provider model.Provider

	// DetectsLanguage controls SupportsLanguageDetection.
	DetectsLanguage bool

	// JobID is returned from StartJob; defaults to "mock-job".
	JobID string

	// StartErrs is consumed one per StartJob call before Start succeeds.
	StartErrs []error

	// PollErrs is consumed one per PollJob call before polls succeed.
	PollErrs []error

	// PollsUntilDone is the number of in-flight polls before Done.
	PollsUntilDone int

	// Failed marks the job as failed once polling finishes.
	Failed bool
	// FailMessage is the provider diagnostic on failure.
	FailMessage string

	// Result is handed out by FetchResult.
	Result *stt.Result

	StartCalls  int
	PollCalls   int
	FetchCalls  int
	CancelCalls int
	LastRequest stt.Request
}

func (b *Backend) Name() model.Provider {
	if b.Provider == "" {
		return model.ProviderAssemblyAI
	}
	return b.Provider
}

func (b *Backend) SupportsLanguageDetection() bool {
	return b.DetectsLanguage
}

func (b *Backend) StartJob(_ context.Context, req stt.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StartCalls++
	b.LastRequest = req
	if len(b.StartErrs) > 0 {
		err := b.StartErrs[0]
		b.StartErrs = b.StartErrs[1:]
		return "", err
	}
	if b.JobID == "" {
		return "mock-job", nil
	}
	return b.JobID, nil
}

func (b *Backend) PollJob(_ context.Context, _ string) (stt.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PollCalls++
	if len(b.PollErrs) > 0 {
		err := b.PollErrs[0]
		b.PollErrs = b.PollErrs[1:]
		return stt.JobStatus{}, err
	}
	if b.PollCalls <= b.PollsUntilDone {
		return stt.JobStatus{ProgressPct: -1}, nil
	}
	return stt.JobStatus{Done: true, Failed: b.Failed, ProgressPct: 100, Message: b.FailMessage}, nil
}

func (b *Backend) FetchResult(_ context.Context, jobID string) (*stt.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FetchCalls++
	if b.Result != nil {
		return b.Result, nil
	}
	return &stt.Result{
		ProviderJobID: jobID,
		Segments: []stt.Segment{
			{SpeakerID: 1, StartSeconds: 0, EndSeconds: 5, Content: "How did the week go?", Confidence: 0.95},
			{SpeakerID: 2, StartSeconds: 5, EndSeconds: 12, Content: "Better than I expected.", Confidence: 0.9},
		},
		DurationSeconds: 12,
		WordCount:       9,
		SpeakerCount:    2,
		MeanConfidence:  0.925,
	}, nil
}

func (b *Backend) CancelJob(_ context.Context, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CancelCalls++
	return nil
}
