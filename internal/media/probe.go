package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Metadata is the subset of probe output the compositor needs.
type Metadata struct {
	Width    int
	Height   int
	Duration time.Duration
	HasAudio bool
}

// ffprobeOutput mirrors the JSON ffprobe emits with -print_format json.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

// Probe extracts dimensions, duration, and audio presence from a local media
// file using ffprobe. Stills report a zero duration.
func Probe(ctx context.Context, path string) (*Metadata, error) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, wrapError(KindUnknown, err, "ffprobe not found in PATH")
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutFor(OpProbe, 0, 0))
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, wrapError(KindUnknown, err, "ffprobe failed for %s", path)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, wrapError(KindUnknown, err, "parse ffprobe output")
	}

	meta := &Metadata{}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if meta.Width == 0 {
				meta.Width = stream.Width
				meta.Height = stream.Height
			}
			if meta.Duration == 0 && stream.Duration != "" {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					meta.Duration = time.Duration(d * float64(time.Second))
				}
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	if meta.Duration == 0 && probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = time.Duration(d * float64(time.Second))
		}
	}

	if meta.Width == 0 || meta.Height == 0 {
		return nil, newError(KindValidation, "no video stream with dimensions in %s", path)
	}

	log.Debug().
		Str("path", path).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Dur("duration", meta.Duration).
		Bool("has_audio", meta.HasAudio).
		Msg("Media probed")
	return meta, nil
}
