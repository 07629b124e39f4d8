package media

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestKindForPath(t *testing.T) {
	tests := []struct {
		path string
		want sourceKind
	}{
		{"out/capture.jpg", kindImage},
		{"out/capture.PNG", kindImage},
		{"out/burst.gif", kindAnimated},
		{"out/clip.mp4", kindVideo},
		{"out/clip.MOV", kindVideo},
		{"out/clip.webm", kindVideo},
	}
	for _, tt := range tests {
		if got := kindForPath(tt.path); got != tt.want {
			t.Errorf("kindForPath(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestOverlayArgsScalesToSourceDimensions(t *testing.T) {
	meta := &Metadata{Width: 1080, Height: 1920}
	args := overlayArgs("in.jpg", "frame.png", "out.jpg", kindImage, meta)

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "[1:v]scale=1080:1920[frame]") {
		t.Errorf("filter should scale overlay to source dims, args = %v", args)
	}
	if !strings.Contains(joined, "overlay=0:0") {
		t.Errorf("overlay should anchor at origin, args = %v", args)
	}
	if args[len(args)-1] != "out.jpg" || args[len(args)-2] != "-y" {
		t.Errorf("args should end with -y out.jpg, got %v", args[len(args)-2:])
	}
}

func TestOverlayArgsVideoAudioHandling(t *testing.T) {
	t.Run("source with audio copies the stream", func(t *testing.T) {
		meta := &Metadata{Width: 1280, Height: 720, HasAudio: true}
		args := overlayArgs("in.mp4", "frame.png", "out.mp4", kindVideo, meta)
		if !hasPair(args, "-c:a", "copy") {
			t.Errorf("want -c:a copy, args = %v", args)
		}
		if slices.Contains(args, "-an") {
			t.Errorf("-an must be absent when source has audio, args = %v", args)
		}
	})

	t.Run("audio-less source strips the audio track", func(t *testing.T) {
		meta := &Metadata{Width: 1280, Height: 720, HasAudio: false}
		args := overlayArgs("in.mp4", "frame.png", "out.mp4", kindVideo, meta)
		if !slices.Contains(args, "-an") {
			t.Errorf("want -an for audio-less source, args = %v", args)
		}
		if hasPair(args, "-c:a", "copy") {
			t.Errorf("-c:a copy must be absent for audio-less source, args = %v", args)
		}
	})
}

func TestOverlayArgsStillIsSingleFrame(t *testing.T) {
	meta := &Metadata{Width: 800, Height: 600}
	args := overlayArgs("in.jpg", "frame.png", "out.jpg", kindImage, meta)
	if !hasPair(args, "-frames:v", "1") {
		t.Errorf("stills should encode exactly one frame, args = %v", args)
	}
	if slices.Contains(args, "-an") || hasPair(args, "-c:a", "copy") {
		t.Errorf("stills must not carry audio flags, args = %v", args)
	}
}

func hasPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestFrameExtractArgs(t *testing.T) {
	withSeek := frameExtractArgs("in.mp4", "out.png", "scale='min(512,iw)':-2", true)
	if !hasPair(withSeek, "-ss", "1") {
		t.Errorf("seek variant should include -ss 1, args = %v", withSeek)
	}
	noSeek := frameExtractArgs("in.mp4", "out.png", "scale='min(512,iw)':-2", false)
	if slices.Contains(noSeek, "-ss") {
		t.Errorf("retry variant should not seek, args = %v", noSeek)
	}
	if !hasPair(noSeek, "-vframes", "1") {
		t.Errorf("want single frame extraction, args = %v", noSeek)
	}
}

func TestTimeoutFor(t *testing.T) {
	tests := []struct {
		name     string
		op       Operation
		duration time.Duration
		bytes    int64
		want     time.Duration
	}{
		{"probe", OpProbe, 0, 0, 15 * time.Second},
		{"image overlay", OpOverlayImage, 0, 0, 60 * time.Second},
		{"short video", OpOverlayVideo, 15 * time.Second, 0, 120 * time.Second},
		{"long video", OpOverlayVideo, 2 * time.Minute, 0, 10 * time.Minute},
		{"small gif", OpOverlayGIF, 0, 1 << 20, 120 * time.Second},
		{"large gif", OpOverlayGIF, 0, 20 << 20, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TimeoutFor(tt.op, tt.duration, tt.bytes); got != tt.want {
				t.Errorf("TimeoutFor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{2048, 1024, 512, 512, 256},
		{1024, 2048, 512, 256, 512},
		{300, 200, 512, 300, 200},
		{512, 512, 512, 512, 512},
	}
	for _, tt := range tests {
		gotW, gotH := fitWithin(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("fitWithin(%d,%d,%d) = %d,%d want %d,%d", tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}
