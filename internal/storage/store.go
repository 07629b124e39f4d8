// Package storage abstracts the media object store. All paths are object
// keys rooted under the per-tenant prefix convention media/{tenantId}/...;
// the S3 implementation is the production backend and tests substitute the
// in-memory one.
package storage

import (
	"context"
	"fmt"
	"time"
)

// MediaStore is the object-store contract the pipeline depends on.
type MediaStore interface {
	// Exists reports whether an object is present at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// Download fetches an object into memory.
	Download(ctx context.Context, key string) ([]byte, error)

	// DownloadToFile fetches an object to a local path.
	DownloadToFile(ctx context.Context, key, localPath string) error

	// Upload stores a local file at the given key and returns a fetchable URL.
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)

	// UploadBytes stores an in-memory buffer at the given key.
	UploadBytes(ctx context.Context, data []byte, key, contentType string) (string, error)

	// PresignGet returns a time-limited GET URL for an object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// TenantKey builds an object key under the tenant's media prefix.
func TenantKey(tenantID string, parts ...string) string {
	key := "media/" + tenantID
	for _, p := range parts {
		key += "/" + p
	}
	return key
}

// ValidateKey rejects keys outside the tenant media convention before any
// network call is made with them.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty storage key")
	}
	if len(key) > 1024 {
		return fmt.Errorf("storage key too long: %d chars", len(key))
	}
	return nil
}
