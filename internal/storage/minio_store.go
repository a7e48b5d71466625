// Package storage keeps proctoring snapshots out of the database; only object
// references travel through the event pipeline.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/stemsi/exstem-proctor/internal/capture"
)

// RefScheme prefixes every reference returned by MinioStore.
const RefScheme = "minio://"

// MinioStore implements capture.Store on a MinIO bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// Put uploads frame under key plus an extension derived from its content type.
func (s *MinioStore) Put(ctx context.Context, key string, frame capture.Frame) (string, error) {
	object := key + extension(frame.ContentType)
	_, err := s.client.PutObject(ctx, s.bucket, object,
		bytes.NewReader(frame.Data), int64(len(frame.Data)),
		minio.PutObjectOptions{ContentType: frame.ContentType},
	)
	if err != nil {
		return "", fmt.Errorf("put capture %s: %w", object, err)
	}
	return Ref(s.bucket, object), nil
}

// PresignedURL returns a time-limited download link for a reference produced by Put.
func (s *MinioStore) PresignedURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	bucket, object, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, object, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Ref formats a bucket/object pair as a capture reference.
func Ref(bucket, object string) string {
	return RefScheme + bucket + "/" + object
}

// ParseRef splits a capture reference into bucket and object.
func ParseRef(ref string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(ref, RefScheme)
	if !ok {
		return "", "", fmt.Errorf("not a minio reference: %q", ref)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || strings.Contains(object, "..") {
		return "", "", fmt.Errorf("malformed minio reference: %q", ref)
	}
	return bucket, object, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/jpeg", "":
		return ".jpg"
	}
	return ""
}
