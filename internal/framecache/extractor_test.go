package framecache

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"renderforge/internal/services"
)

func captureFFmpegArgs(t *testing.T, mode string) *[]string {
	t.Helper()
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperFFmpeg")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_FFMPEG=1", "FFMPEG_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestHybridSeekSplitsTimestamp(t *testing.T) {
	captured := captureFFmpegArgs(t, "success")

	extractor := NewFFmpegExtractor("ffmpeg")
	data, err := extractor.ExtractFrame(context.Background(), "/media/clip.mp4", 12.75, "png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected frame bytes")
	}

	args := strings.Join(*captured, " ")
	if !strings.Contains(args, "-ss 11.750 -i /media/clip.mp4") {
		t.Fatalf("expected coarse pre-input seek, got %q", args)
	}
	if !strings.Contains(args, "-i /media/clip.mp4 -ss 1.000") {
		t.Fatalf("expected fine post-input seek, got %q", args)
	}
	if !strings.Contains(args, "-frames:v 1") {
		t.Fatalf("expected single frame decode, got %q", args)
	}
	if !strings.Contains(args, "-vcodec png") {
		t.Fatalf("expected png codec, got %q", args)
	}
}

func TestCoarseSeekClampsAtZero(t *testing.T) {
	captured := captureFFmpegArgs(t, "success")

	extractor := NewFFmpegExtractor("ffmpeg")
	if _, err := extractor.ExtractFrame(context.Background(), "/media/clip.mp4", 0.4, "jpeg"); err != nil {
		t.Fatalf("extract: %v", err)
	}

	args := strings.Join(*captured, " ")
	if !strings.Contains(args, "-ss 0.000 -i /media/clip.mp4 -ss 0.400") {
		t.Fatalf("expected clamped coarse seek, got %q", args)
	}
	if !strings.Contains(args, "-vcodec mjpeg") {
		t.Fatalf("expected mjpeg codec for jpeg output, got %q", args)
	}
}

func TestSubprocessFailureCarriesStderr(t *testing.T) {
	captureFFmpegArgs(t, "fail")

	extractor := NewFFmpegExtractor("ffmpeg")
	_, err := extractor.ExtractFrame(context.Background(), "/media/clip.mp4", 3, "png")
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !strings.Contains(err.Error(), "moov atom not found") {
		t.Fatalf("expected ffmpeg stderr in error, got %q", err.Error())
	}
}

// TestHelperFFmpeg is exec'd by the tests above in place of ffmpeg.
func TestHelperFFmpeg(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_FFMPEG") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "fail":
		os.Stderr.WriteString("/media/clip.mp4: moov atom not found\n")
		os.Exit(1)
	default:
		os.Stdout.WriteString("\x89PNG fake frame payload")
		os.Exit(0)
	}
}
