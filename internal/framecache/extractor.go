package framecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"renderforge/internal/services"
)

var commandContext = exec.CommandContext

// coarseSeekLead is how far before the target timestamp the fast keyframe
// seek lands. The remaining offset is covered by an accurate seek after the
// input is opened, so the output stays frame-exact without a full linear
// scan.
const coarseSeekLead = 1.0

// Extractor decodes exactly one frame from a video file as an encoded
// image.
type Extractor interface {
	ExtractFrame(ctx context.Context, src string, seconds float64, format string) ([]byte, error)
}

// FFmpegExtractor shells out to ffmpeg for frame extraction.
type FFmpegExtractor struct {
	binary string
}

// NewFFmpegExtractor constructs an extractor using the given ffmpeg binary.
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegExtractor{binary: binary}
}

// ExtractFrame performs the hybrid seek and writes one frame to stdout in
// the requested format.
func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, src string, seconds float64, format string) ([]byte, error) {
	coarse := seconds - coarseSeekLead
	if coarse < 0 {
		coarse = 0
	}
	fine := seconds - coarse

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(coarse),
		"-i", src,
		"-ss", formatSeconds(fine),
		"-frames:v", "1",
		"-f", "image2pipe",
	}
	switch format {
	case "jpeg":
		args = append(args, "-vcodec", "mjpeg", "-q:v", "2")
	default:
		args = append(args, "-vcodec", "png")
	}
	args = append(args, "pipe:1")

	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, services.Wrap(services.ErrExternalTool, "extract", "spawn", fmt.Sprintf("ffmpeg binary %q not found", e.binary), err)
		}
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		return nil, services.Wrap(services.ErrExtraction, "extract", "decode", diagnostic, nil)
	}
	if stdout.Len() == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extract", "decode", fmt.Sprintf("no frame decoded at %s from %s", formatSeconds(seconds), src), nil)
	}
	return stdout.Bytes(), nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
