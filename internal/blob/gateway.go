// SPDX-License-Identifier: MIT

// Package blob issues scoped upload URLs and probes uploaded objects.
// It is a pure wrapper over the object store; no business rules.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Gateway is the only blob contract the core depends on.
type Gateway interface {
	// GenerateWriteURL returns a time-bounded URL that accepts exactly
	// one object at the given path.
	GenerateWriteURL(ctx context.Context, objectPath, contentType string, ttl time.Duration) (url string, expiry time.Time, err error)

	// Exists probes the object, returning its size when present.
	Exists(ctx context.Context, objectPath string) (bool, int64, error)

	// URI returns the provider-facing location of an object path, in
	// the scheme the STT back ends understand.
	URI(objectPath string) string
}

// AudioPath derives the canonical object path for a session's audio.
func AudioPath(ownerID, sessionID, filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	return fmt.Sprintf("audio-uploads/%s/%s.%s", ownerID, sessionID, ext)
}

// ContentTypeFor maps an audio extension to its MIME type.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")) {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "ogg":
		return "audio/ogg"
	case "m4a":
		return "audio/mp4"
	case "mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
