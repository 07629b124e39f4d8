// Package bundle builds ZIP archives of session outputs for whole-event
// export. Photos are already JPEG-compressed, so the archive exists for
// single-file delivery, not size; zstd still shaves the PNG overlays and
// metadata sidecars meaningfully.
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/clementinehq/clementine/internal/storage"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard
// (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

func init() {
	zip.RegisterCompressor(zipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
}

// maxBundleBytes caps one export archive. Anything larger must be exported
// file by file.
const maxBundleBytes int64 = 450 << 20

// Build downloads the given object keys and writes them into a ZIP at
// destPath. Entry names are the key basenames; duplicate basenames get a
// numeric suffix. Missing objects are skipped with a warning so one deleted
// output never blocks a whole event export. Returns the archive size.
func Build(ctx context.Context, media storage.MediaStore, keys []string, destPath string) (int64, error) {
	if len(keys) == 0 {
		return 0, fmt.Errorf("no keys to bundle")
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create bundle file: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	seen := make(map[string]int)
	added := 0
	var total int64

	for _, key := range keys {
		data, err := media.Download(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping missing output in bundle")
			continue
		}

		name := filepath.Base(key)
		if n := seen[name]; n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], n+1, ext)
		}
		seen[filepath.Base(key)]++

		header := &zip.FileHeader{
			Name:     name,
			Method:   zipMethodZstd,
			Modified: time.Now(),
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return 0, fmt.Errorf("create bundle entry %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return 0, fmt.Errorf("write bundle entry %s: %w", name, err)
		}

		added++
		total += int64(len(data))
		if total > maxBundleBytes {
			zw.Close()
			return 0, fmt.Errorf("bundle exceeds %d bytes after %d entries", maxBundleBytes, added)
		}
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close bundle: %w", err)
	}
	if added == 0 {
		return 0, fmt.Errorf("no bundleable outputs among %d keys", len(keys))
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return 0, fmt.Errorf("stat bundle: %w", err)
	}

	log.Info().
		Str("dest", destPath).
		Int("entries", added).
		Int64("raw_bytes", total).
		Int64("zip_bytes", info.Size()).
		Msg("Export bundle built")
	return info.Size(), nil
}
