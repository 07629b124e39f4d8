package transform

import (
	"context"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/session"
	"github.com/clementinehq/clementine/internal/storage"
)

// LoadReferences resolves and downloads every reference image an outcome
// config names. Loading is fail-fast: the first missing reference aborts the
// whole job before any generation spend, and remaining references are not
// fetched. References with no resolvable storage path are a config defect,
// not a storage miss.
func LoadReferences(ctx context.Context, store storage.MediaStore, refs []session.MediaReference) ([]ReferenceImage, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	loaded := make([]ReferenceImage, 0, len(refs))
	for _, ref := range refs {
		key := ref.StoragePath()
		if key == "" {
			return nil, NewError(KindInvalidConfig, "reference %q has no storage path", ref.Name())
		}

		exists, err := store.Exists(ctx, key)
		if err != nil {
			return nil, WrapError(KindAPIError, err, "check reference %q", ref.Name())
		}
		if !exists {
			log.Warn().
				Str("reference", ref.Name()).
				Str("key", key).
				Int("loaded_so_far", len(loaded)).
				Msg("Reference image missing from storage, aborting load")
			return nil, NewError(KindReferenceImageNotFound, "reference %q not found at %s", ref.Name(), key)
		}

		data, err := store.Download(ctx, key)
		if err != nil {
			return nil, WrapError(KindAPIError, err, "download reference %q", ref.Name())
		}
		if len(data) == 0 {
			return nil, NewError(KindReferenceImageNotFound, "reference %q at %s is empty", ref.Name(), key)
		}

		loaded = append(loaded, ReferenceImage{
			ID:       ref.MediaAssetID,
			Path:     key,
			MIMEType: MIMEFromKey(key),
			Data:     data,
		})
		log.Debug().
			Str("reference", ref.Name()).
			Str("key", key).
			Int("bytes", len(data)).
			Msg("Reference image loaded")
	}
	return loaded, nil
}

// MIMEFromKey infers an image MIME type from the object key extension.
// Unknown extensions fall back to JPEG, which is what the capture surface
// produces.
func MIMEFromKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
