// SPDX-License-Identifier: MIT

// Package stt presents a single batch-transcription contract over the
// external speech-to-text back ends. A backend accepts an audio blob
// URI, runs the provider's asynchronous job machinery, and yields
// normalized speaker-diarized segments.
//
// Backends are stateless: a job is addressed by the provider-native id
// alone, so retry and resumption never depend on in-process state.
package stt

import (
	"context"
	"fmt"

	"golang.org/x/text/language"

	"github.com/coachscribe/coachscribe/internal/domain/lifecycle"
	"github.com/coachscribe/coachscribe/internal/domain/model"
)

// Request describes one transcription job.
type Request struct {
	// AudioURI locates the uploaded audio in the blob store, in the
	// scheme the chosen backend understands.
	AudioURI string

	// Language is a BCP-47 tag, or "auto" for provider-side detection.
	Language string

	// SpeakerHint is the expected speaker count; 0 leaves diarization
	// unconstrained.
	SpeakerHint int
}

// Segment is a normalized span of transcribed speech.
type Segment struct {
	SpeakerID    int
	StartSeconds float64
	EndSeconds   float64
	Content      string
	// Confidence in [0,1]; negative when the provider reported none.
	Confidence float64
}

// Result is the normalized outcome of a finished job.
type Result struct {
	ProviderJobID   string
	Segments        []Segment
	DurationSeconds float64
	WordCount       int
	SpeakerCount    int
	MeanConfidence  float64
}

// JobStatus is a point-in-time poll of an open job.
type JobStatus struct {
	Done   bool
	Failed bool
	// ProgressPct in [0,100]; -1 when the provider exposes none.
	ProgressPct int
	// Message carries the provider's failure diagnostic when Failed.
	Message string
}

// Backend is the uniform capability set over one provider.
type Backend interface {
	Name() model.Provider
	SupportsLanguageDetection() bool
	StartJob(ctx context.Context, req Request) (jobID string, err error)
	PollJob(ctx context.Context, jobID string) (JobStatus, error)
	FetchResult(ctx context.Context, jobID string) (*Result, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Registry resolves provider preferences to backends.
type Registry struct {
	backends map[model.Provider]Backend
	def      model.Provider
}

// NewRegistry builds a registry; def is what "auto" resolves to.
func NewRegistry(def model.Provider, backends ...Backend) (*Registry, error) {
	if def == "" || def == model.ProviderAuto {
		return nil, fmt.Errorf("stt: default provider must be concrete, got %q", def)
	}
	m := make(map[model.Provider]Backend, len(backends))
	for _, b := range backends {
		m[b.Name()] = b
	}
	if _, ok := m[def]; !ok {
		return nil, fmt.Errorf("stt: default provider %q has no backend", def)
	}
	return &Registry{backends: m, def: def}, nil
}

// Resolve pins a preference to a concrete provider. The resolution is
// recorded on the session so retries replay against the same backend.
func (r *Registry) Resolve(pref model.Provider) (model.Provider, error) {
	if pref == model.ProviderAuto || pref == "" {
		pref = r.def
	}
	if _, ok := r.backends[pref]; !ok {
		return "", fmt.Errorf("stt: no backend for provider %q", pref)
	}
	return pref, nil
}

// Backend returns the backend for a concrete provider.
func (r *Registry) Backend(p model.Provider) (Backend, error) {
	b, ok := r.backends[p]
	if !ok {
		return nil, fmt.Errorf("stt: no backend for provider %q", p)
	}
	return b, nil
}

// CheckLanguage validates a tag against a backend's capabilities.
// "auto" passes only when the backend supports detection.
func CheckLanguage(b Backend, tag string) error {
	if tag == "auto" {
		if !b.SupportsLanguageDetection() {
			return lifecycle.NewReasonError(model.RLangNotSupported,
				fmt.Sprintf("provider %s cannot detect languages", b.Name()), nil)
		}
		return nil
	}
	if _, err := language.Parse(tag); err != nil {
		return lifecycle.NewReasonError(model.RLangNotSupported, "unparseable language tag "+tag, err)
	}
	return nil
}

// MeanConfidence averages the known confidences of a segment batch.
// Returns 0 when no segment carries one.
func MeanConfidence(segments []Segment) float64 {
	var sum float64
	var n int
	for _, seg := range segments {
		if seg.Confidence >= 0 {
			sum += seg.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// CountSpeakers returns the number of distinct speaker ids.
func CountSpeakers(segments []Segment) int {
	seen := make(map[int]struct{}, 4)
	for _, seg := range segments {
		seen[seg.SpeakerID] = struct{}{}
	}
	return len(seen)
}
