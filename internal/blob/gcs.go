// SPDX-License-Identifier: MIT

package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCSGateway implements Gateway on a Google Cloud Storage bucket using
// V4 signed URLs.
type GCSGateway struct {
	client *storage.Client
	bucket string
}

func NewGCSGateway(ctx context.Context, bucket string) (*GCSGateway, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: storage client: %w", err)
	}
	return &GCSGateway{client: client, bucket: bucket}, nil
}

func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func (g *GCSGateway) GenerateWriteURL(_ context.Context, objectPath, contentType string, ttl time.Duration) (string, time.Time, error) {
	expiry := time.Now().Add(ttl)
	url, err := g.client.Bucket(g.bucket).SignedURL(objectPath, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     expiry,
		ContentType: contentType,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("blob: sign url for %s: %w", objectPath, err)
	}
	return url, expiry, nil
}

func (g *GCSGateway) Exists(ctx context.Context, objectPath string) (bool, int64, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(objectPath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("blob: probe %s: %w", objectPath, err)
	}
	return true, attrs.Size, nil
}

// URI returns the provider-facing gs:// URI for an object path.
func (g *GCSGateway) URI(objectPath string) string {
	return "gs://" + g.bucket + "/" + objectPath
}
