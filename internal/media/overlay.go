package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// sourceKind classifies an input for overlay arg construction.
type sourceKind int

const (
	kindImage sourceKind = iota
	kindAnimated
	kindVideo
)

func kindForPath(path string) sourceKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gif":
		return kindAnimated
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return kindVideo
	default:
		return kindImage
	}
}

// overlayArgs builds the ffmpeg argument list for compositing a frame PNG
// over a source at origin. The overlay is scaled to the source's probed
// dimensions first so a single frame asset serves every capture resolution.
// Pure function so the command shape is unit-testable without ffmpeg.
func overlayArgs(inputPath, overlayPath, outputPath string, kind sourceKind, meta *Metadata) []string {
	filter := fmt.Sprintf("[1:v]scale=%d:%d[frame];[0:v][frame]overlay=0:0", meta.Width, meta.Height)

	args := []string{
		"-i", inputPath,
		"-i", overlayPath,
		"-filter_complex", filter,
	}

	switch kind {
	case kindVideo:
		if meta.HasAudio {
			args = append(args, "-c:a", "copy")
		} else {
			args = append(args, "-an")
		}
		args = append(args, "-movflags", "+faststart")
	case kindAnimated:
		// GIF palette quality is acceptable without a palettegen pass for
		// booth-sized outputs; a second pass doubles the encode time.
	case kindImage:
		args = append(args, "-frames:v", "1")
	}

	return append(args, "-y", outputPath)
}

// CompositeOverlay burns the overlay image onto the source media, writing the
// result to outputPath. One code path serves stills, animated GIFs, and
// videos; only the trailing codec flags differ.
func CompositeOverlay(ctx context.Context, inputPath, overlayPath, outputPath string) error {
	if _, err := os.Stat(overlayPath); err != nil {
		return wrapError(KindValidation, err, "overlay asset not readable")
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return wrapError(KindValidation, err, "input media not readable")
	}

	meta, err := Probe(ctx, inputPath)
	if err != nil {
		return err
	}

	kind := kindForPath(inputPath)
	op := OpOverlayImage
	switch kind {
	case kindAnimated:
		op = OpOverlayGIF
	case kindVideo:
		op = OpOverlayVideo
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return wrapError(KindUnknown, err, "ffmpeg not found in PATH")
	}

	args := overlayArgs(inputPath, overlayPath, outputPath, kind, meta)
	timeout := TimeoutFor(op, meta.Duration, info.Size())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().
		Str("input", inputPath).
		Str("overlay", overlayPath).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Bool("has_audio", meta.HasAudio).
		Dur("timeout", timeout).
		Msg("Compositing overlay")

	start := time.Now()
	output, err := exec.CommandContext(ctx, ffmpegPath, args...).CombinedOutput()
	if err != nil {
		log.Error().
			Err(err).
			Str("stderr", truncate(string(output), 500)).
			Msg("ffmpeg overlay failed")
		return wrapError(KindUnknown, err, "ffmpeg overlay: %s", truncate(string(output), 200))
	}

	// ffmpeg can exit 0 and still write nothing when the muxer rejects the
	// stream late. Treat an empty output as a failure, not a success.
	out, err := os.Stat(outputPath)
	if err != nil {
		return wrapError(KindUnknown, err, "overlay output missing")
	}
	if out.Size() == 0 {
		return newError(KindUnknown, "overlay produced empty output for %s", inputPath)
	}

	log.Info().
		Str("output", outputPath).
		Int64("bytes", out.Size()).
		Dur("duration", time.Since(start)).
		Msg("Overlay composite complete")
	return nil
}

// truncate shortens a string for log fields.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
