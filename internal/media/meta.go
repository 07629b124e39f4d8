package media

import (
	"os"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// CaptureTime reads the EXIF capture timestamp from an image file. Export
// filenames prefer the moment the photo was taken over the moment the
// pipeline finished; the two can differ by minutes when jobs queue up.
// Returns false when the file carries no usable EXIF date, which is normal
// for AI-generated outputs.
func CaptureTime(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	m, err := imagemeta.Decode(f)
	if err != nil {
		log.Debug().Str("path", path).Err(err).Msg("No EXIF metadata in image")
		return time.Time{}, false
	}

	for _, ts := range []time.Time{m.DateTimeOriginal(), m.CreateDate(), m.ModifyDate()} {
		if !ts.IsZero() {
			return ts, true
		}
	}
	return time.Time{}, false
}
