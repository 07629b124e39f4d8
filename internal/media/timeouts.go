package media

import "time"

// Operation names a bounded ffmpeg/ffprobe invocation class.
type Operation string

const (
	OpProbe        Operation = "probe"
	OpThumbnail    Operation = "thumbnail"
	OpScale        Operation = "scale"
	OpOverlayImage Operation = "overlayImage"
	OpOverlayGIF   Operation = "overlayGif"
	OpOverlayVideo Operation = "overlayVideo"
)

// Timeouts per operation class. Image work is near-instant; GIFs re-encode
// every frame; video re-encode cost scales with duration, so videos get a
// short and a long bucket split at longVideoThreshold.
var operationTimeouts = map[Operation]time.Duration{
	OpProbe:        15 * time.Second,
	OpThumbnail:    30 * time.Second,
	OpScale:        60 * time.Second,
	OpOverlayImage: 60 * time.Second,
	OpOverlayGIF:   120 * time.Second,
	OpOverlayVideo: 120 * time.Second,
}

const (
	longVideoThreshold = 30 * time.Second
	longVideoTimeout   = 10 * time.Minute
	largeGIFThreshold  = 10 << 20
	largeGIFTimeout    = 5 * time.Minute
	defaultToolTimeout = 60 * time.Second
)

// TimeoutFor returns the wall-clock budget for an operation. sourceDuration
// is the probed media duration (zero for stills); sourceBytes is the input
// file size.
func TimeoutFor(op Operation, sourceDuration time.Duration, sourceBytes int64) time.Duration {
	if op == OpOverlayVideo && sourceDuration > longVideoThreshold {
		return longVideoTimeout
	}
	if op == OpOverlayGIF && sourceBytes > largeGIFThreshold {
		return largeGIFTimeout
	}
	if t, ok := operationTimeouts[op]; ok {
		return t
	}
	return defaultToolTimeout
}
