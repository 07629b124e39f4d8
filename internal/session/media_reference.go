package session

import (
	"net/url"
	"strings"
)

// DefaultDisplayName is substituted for legacy media records that predate the
// displayName field.
const DefaultDisplayName = "Untitled media"

// MediaReference is a pointer to a stored image or video. References are
// never owned by the session; asset lifetime is managed elsewhere.
type MediaReference struct {
	MediaAssetID string `json:"mediaAssetId" dynamodbav:"mediaAssetId"`
	URL          string `json:"url" dynamodbav:"url"`

	// FilePath is the storage-internal object key. Nullable: records written
	// before the path migration only carried a URL.
	FilePath string `json:"filePath,omitempty" dynamodbav:"filePath,omitempty"`

	DisplayName string `json:"displayName,omitempty" dynamodbav:"displayName,omitempty"`
}

// Name returns the display name, defaulting for legacy records.
func (m *MediaReference) Name() string {
	if m.DisplayName == "" {
		return DefaultDisplayName
	}
	return m.DisplayName
}

// StoragePath returns the object key for this reference, deriving it from the
// URL for legacy records that predate the filePath field. An empty return
// means the reference cannot be located in storage.
func (m *MediaReference) StoragePath() string {
	if m.FilePath != "" {
		return m.FilePath
	}
	return StoragePathFromURL(m.URL)
}

// StoragePathFromURL extracts the object key from a stored media URL.
//
// This is a format-specific heuristic tied to the S3 URL shapes this
// deployment has produced: virtual-hosted
// (https://{bucket}.s3.{region}.amazonaws.com/{key}) and path-style
// (https://s3.{region}.amazonaws.com/{bucket}/{key}), with or without
// presign query parameters. It is deliberately isolated here so a storage
// provider change replaces one function. Unrecognized URLs return "".
func StoragePathFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		return ""
	}

	key := strings.TrimPrefix(u.Path, "/")

	// Path-style URLs carry the bucket as the first path segment.
	if strings.HasPrefix(u.Hostname(), "s3.") || strings.HasPrefix(u.Hostname(), "s3-") {
		if _, rest, ok := strings.Cut(key, "/"); ok {
			key = rest
		} else {
			return ""
		}
	}

	if key == "" {
		return ""
	}
	// Presign query parameters are already excluded by u.Path; reject keys
	// that escaped into something that cannot be a media object.
	if !strings.HasPrefix(key, "media/") {
		return ""
	}
	return key
}
