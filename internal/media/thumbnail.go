package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultThumbnailMaxDimension caps thumbnail width and height. Gallery tiles
// never render larger than this.
const DefaultThumbnailMaxDimension = 512

const thumbnailJPEGQuality = 80

// GenerateThumbnail produces a JPEG thumbnail for a local media file.
// JPEG/PNG stills are resized in pure Go; GIFs ship as-is because booth GIFs
// are already small; videos get a frame extracted with ffmpeg first.
// Returns the thumbnail bytes and their MIME type.
func GenerateThumbnail(ctx context.Context, path string, maxDimension int) ([]byte, string, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultThumbnailMaxDimension
	}
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".jpg", ".jpeg", ".png":
		return thumbnailPureGo(path, ext, maxDimension)
	case ".gif":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", wrapError(KindValidation, err, "read gif for thumbnail")
		}
		return data, "image/gif", nil
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return thumbnailVideoFrame(ctx, path, maxDimension)
	default:
		return nil, "", newError(KindValidation, "unsupported format for thumbnail: %s", ext)
	}
}

// thumbnailPureGo resizes a JPEG or PNG without shelling out.
func thumbnailPureGo(path, ext string, maxDimension int) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", wrapError(KindValidation, err, "open image")
	}
	defer f.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(f)
	default:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return nil, "", wrapError(KindValidation, err, "decode image")
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxDimension)

	out := img
	if width != bounds.Dx() || height != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, "", wrapError(KindUnknown, err, "encode thumbnail")
	}

	log.Debug().
		Str("path", path).
		Int("orig_width", bounds.Dx()).
		Int("orig_height", bounds.Dy()).
		Int("thumb_width", width).
		Int("thumb_height", height).
		Int("bytes", buf.Len()).
		Msg("Thumbnail generated")
	return buf.Bytes(), "image/jpeg", nil
}

// thumbnailVideoFrame extracts a frame at the 1s mark, retrying at 0s for
// clips shorter than a second, then resizes it like a still.
func thumbnailVideoFrame(ctx context.Context, path string, maxDimension int) ([]byte, string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, "", wrapError(KindUnknown, err, "ffmpeg not found in PATH")
	}

	tmp, err := os.CreateTemp("", "clem-thumb-*.png")
	if err != nil {
		return nil, "", wrapError(KindUnknown, err, "create temp frame file")
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	ctx, cancel := context.WithTimeout(ctx, TimeoutFor(OpThumbnail, 0, 0))
	defer cancel()

	vf := fmt.Sprintf("scale='min(%d,iw)':-2", maxDimension)
	output, err := exec.CommandContext(ctx, ffmpegPath, frameExtractArgs(path, tmpPath, vf, true)...).CombinedOutput()
	if err != nil {
		output2, err2 := exec.CommandContext(ctx, ffmpegPath, frameExtractArgs(path, tmpPath, vf, false)...).CombinedOutput()
		if err2 != nil {
			return nil, "", wrapError(KindUnknown, err2, "ffmpeg frame extraction: %s / %s",
				truncate(string(output), 200), truncate(string(output2), 200))
		}
	}

	frame, err := os.Open(tmpPath)
	if err != nil {
		return nil, "", wrapError(KindUnknown, err, "read extracted frame")
	}
	defer frame.Close()

	img, err := png.Decode(frame)
	if err != nil {
		return nil, "", wrapError(KindUnknown, err, "decode extracted frame")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, "", wrapError(KindUnknown, err, "encode video thumbnail")
	}
	return buf.Bytes(), "image/jpeg", nil
}

// frameExtractArgs builds the ffmpeg args for single-frame extraction.
// seekFirst seeks to 1s to skip black lead-in frames.
func frameExtractArgs(inputPath, outputPath, vf string, seekFirst bool) []string {
	args := []string{"-i", inputPath}
	if seekFirst {
		args = append(args, "-ss", "1")
	}
	return append(args,
		"-vframes", "1",
		"-vf", vf,
		"-f", "image2",
		"-y", outputPath,
	)
}

// fitWithin scales dimensions to fit inside a square of side max, preserving
// aspect ratio. Images already inside the box are untouched.
func fitWithin(width, height, max int) (int, int) {
	if width <= max && height <= max {
		return width, height
	}
	if width >= height {
		return max, height * max / width
	}
	return width * max / height, max
}
