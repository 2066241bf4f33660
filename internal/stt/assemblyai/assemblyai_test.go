// SPDX-License-Identifier: MIT

package assemblyai

import (
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDiarizedTranscript(t *testing.T) {
	transcript := &aai.Transcript{
		AudioDuration: aai.Float64(281.5),
		Words:         make([]aai.TranscriptWord, 7),
		Utterances: []aai.TranscriptUtterance{
			{
				Speaker:    aai.String("A"),
				Text:       aai.String("How was your week?"),
				Start:      aai.Int64(1200),
				End:        aai.Int64(4800),
				Confidence: aai.Float64(0.91),
			},
			{
				Speaker:    aai.String("B"),
				Text:       aai.String("Busy, but good."),
				Start:      aai.Int64(5000),
				End:        aai.Int64(7400),
				Confidence: aai.Float64(0.87),
			},
			{
				Speaker: aai.String("A"),
				Text:    aai.String("   "),
			},
		},
	}

	res := normalize("tr_1", transcript)

	assert.Equal(t, "tr_1", res.ProviderJobID)
	assert.InDelta(t, 281.5, res.DurationSeconds, 1e-9)
	assert.Equal(t, 7, res.WordCount)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 1, res.Segments[0].SpeakerID)
	assert.InDelta(t, 1.2, res.Segments[0].StartSeconds, 1e-9)
	assert.InDelta(t, 4.8, res.Segments[0].EndSeconds, 1e-9)
	assert.Equal(t, 2, res.Segments[1].SpeakerID)
	assert.Equal(t, "Busy, but good.", res.Segments[1].Content)
	assert.Equal(t, 2, res.SpeakerCount)
	assert.InDelta(t, 0.89, res.MeanConfidence, 1e-9)
}

func TestNormalizeMonologueFallback(t *testing.T) {
	transcript := &aai.Transcript{
		AudioDuration: aai.Float64(42),
		Text:          aai.String("Just me talking."),
		Confidence:    aai.Float64(0.8),
	}

	res := normalize("tr_2", transcript)

	require.Len(t, res.Segments, 1)
	assert.Equal(t, 1, res.Segments[0].SpeakerID)
	assert.InDelta(t, 42, res.Segments[0].EndSeconds, 1e-9)
	assert.Equal(t, "Just me talking.", res.Segments[0].Content)
}

func TestSpeakerNumber(t *testing.T) {
	assert.Equal(t, 1, speakerNumber("A"))
	assert.Equal(t, 3, speakerNumber(" c "))
	assert.Equal(t, 1, speakerNumber("speaker_0"))
	assert.Equal(t, 3, speakerNumber("speaker_2"))
	assert.Equal(t, 1, speakerNumber("weird"))
}

func TestLanguageCode(t *testing.T) {
	assert.Equal(t, "zh_tw", languageCode("zh-TW"))
	assert.Equal(t, "en", languageCode("en"))
}
