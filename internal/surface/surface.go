// Package surface defines the typed contract between the capture loop and
// whatever renders the scene. The renderer can be a subprocess, an
// embeddable headless renderer, or an in-memory stub; the capture loop only
// sees this interface.
package surface

import (
	"context"
	"encoding/json"

	"renderforge/internal/assets"
)

// CompositionKind distinguishes animated compositions from single stills.
type CompositionKind string

const (
	KindComposition CompositionKind = "composition"
	KindStill       CompositionKind = "still"
)

// Composition is the immutable metadata a rendering surface reports for one
// registered composition.
type Composition struct {
	ID               string          `json:"id"`
	DurationInFrames int             `json:"durationInFrames"`
	FPS              float64         `json:"fps"`
	Width            int             `json:"width"`
	Height           int             `json:"height"`
	DefaultProps     json.RawMessage `json:"defaultProps,omitempty"`
	Kind             CompositionKind `json:"type"`
}

// ImageFormat selects the capture encoding.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// Ext returns the filename extension for the format.
func (f ImageFormat) Ext() string {
	if f == FormatJPEG {
		return "jpeg"
	}
	return "png"
}

// Session is one live rendering-surface instance. A session is exclusively
// owned by a single capture worker for the duration of a job.
type Session interface {
	// Loaded reports whether the surface finished its initial load.
	Loaded(ctx context.Context) (bool, error)
	// Compositions lists the metadata of every registered composition.
	Compositions(ctx context.Context) ([]Composition, error)
	// SetInputProps replaces the surface's input parameters.
	SetInputProps(ctx context.Context, props json.RawMessage) error
	// SetComposition binds the session to one composition id.
	SetComposition(ctx context.Context, id string) error
	// SetFrame commands the surface to display the given frame. Holds the
	// frame acquires are observed through PendingHoldCount; SetFrame itself
	// does not wait for them.
	SetFrame(ctx context.Context, frame int) error
	// PendingHoldCount returns the surface's outstanding hold count.
	PendingHoldCount(ctx context.Context) (int, error)
	// CaptureFrame encodes the currently displayed frame as an image.
	// Quality applies to jpeg only.
	CaptureFrame(ctx context.Context, format ImageFormat, quality int) ([]byte, error)
	// AudioTracks returns the audio sources registered so far. The set is
	// global to the rendering surface, not per-session.
	AudioTracks(ctx context.Context) ([]assets.AudioTrack, error)
	// Close releases the session's resources.
	Close() error
}

// HoldInspector is an optional Session extension that can name outstanding
// holds, used to enrich frame timeout diagnostics.
type HoldInspector interface {
	PendingHoldLabels() []string
}

// Host opens rendering-surface sessions. One session is opened per capture
// worker.
type Host interface {
	OpenSession(ctx context.Context) (Session, error)
}
