package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMetadata marks failures resolving composition metadata before any
	// frame work starts, such as an unknown composition id.
	ErrMetadata = errors.New("metadata error")
	// ErrFrameTimeout marks a frame whose holds never cleared within the
	// per-frame deadline.
	ErrFrameTimeout = errors.New("frame timeout")
	// ErrExtraction marks a video frame extraction subprocess failure.
	ErrExtraction = errors.New("extraction error")
	// ErrEncode marks a failure of the final stitching subprocess.
	ErrEncode = errors.New("encode error")
	// ErrCancelled marks cooperative cancellation of a render job.
	ErrCancelled = errors.New("render cancelled")
	// ErrExternalTool marks a subprocess that could not be spawned at all,
	// typically a missing binary.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration marks invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrEncode
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether the error chain represents cooperative
// cancellation rather than a genuine failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
