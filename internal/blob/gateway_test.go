// SPDX-License-Identifier: MIT

package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioPath(t *testing.T) {
	assert.Equal(t, "audio-uploads/u1/s1.mp3", AudioPath("u1", "s1", "call.mp3"))
	// Only the extension is kept; the user-chosen name never reaches
	// object storage.
	assert.Equal(t, "audio-uploads/u1/s1.wav", AudioPath("u1", "s1", "週三會談 (final).wav"))
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"call.mp3":  "audio/mpeg",
		"call.WAV":  "audio/wav",
		"call.flac": "audio/flac",
		"call.ogg":  "audio/ogg",
		"call.m4a":  "audio/mp4",
		"call.mp4":  "video/mp4",
		"call.xyz":  "application/octet-stream",
	}
	for name, want := range cases {
		assert.Equal(t, want, ContentTypeFor(name), name)
	}
}

func TestMemoryGateway(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway()

	url, expiry, err := g.GenerateWriteURL(ctx, "audio-uploads/u1/s1.mp3", "audio/mpeg", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "audio-uploads/u1/s1.mp3")
	assert.True(t, expiry.After(time.Now()))

	exists, _, err := g.Exists(ctx, "audio-uploads/u1/s1.mp3")
	require.NoError(t, err)
	assert.False(t, exists, "signing alone does not create the object")

	g.Put("audio-uploads/u1/s1.mp3", 2048)
	exists, size, err := g.Exists(ctx, "audio-uploads/u1/s1.mp3")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(2048), size)

	assert.Equal(t, "memory://audio-uploads/u1/s1.mp3", g.URI("audio-uploads/u1/s1.mp3"))

	g.Delete("audio-uploads/u1/s1.mp3")
	exists, _, err = g.Exists(ctx, "audio-uploads/u1/s1.mp3")
	require.NoError(t, err)
	assert.False(t, exists)
}
