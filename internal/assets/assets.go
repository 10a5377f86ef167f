// Package assets models the audio sources a composition registers while its
// frames are being captured. A collector validates and accumulates the set
// the rendering surface reports; the capture loop reads it once after all
// workers have drained the frame queue.
package assets

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TrackKind distinguishes the source container of a registered track.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// AudioTrack describes one audio source placed on the output timeline.
type AudioTrack struct {
	Kind             TrackKind `json:"type"`
	Src              string    `json:"src"`
	StartAtFrame     int       `json:"startAtFrame"`
	DurationInFrames int       `json:"durationInFrames"`
	StartFrom        float64   `json:"startFrom"`
	Volume           float64   `json:"volume"`
	PlaybackRate     float64   `json:"playbackRate"`
}

// Validate checks the descriptor for values the stitcher cannot encode.
func (t AudioTrack) Validate() error {
	switch t.Kind {
	case KindAudio, KindVideo:
	default:
		return fmt.Errorf("audio track: unknown kind %q", t.Kind)
	}
	if strings.TrimSpace(t.Src) == "" {
		return fmt.Errorf("audio track: src is required")
	}
	if t.StartAtFrame < 0 {
		return fmt.Errorf("audio track %s: startAtFrame must be >= 0", t.Src)
	}
	if t.DurationInFrames <= 0 {
		return fmt.Errorf("audio track %s: durationInFrames must be > 0", t.Src)
	}
	if t.Volume < 0 || t.Volume > 1 {
		return fmt.Errorf("audio track %s: volume must be within [0, 1]", t.Src)
	}
	if t.PlaybackRate <= 0 {
		return fmt.Errorf("audio track %s: playbackRate must be > 0", t.Src)
	}
	return nil
}

// Collector accumulates audio tracks across all frame tasks of a render.
// Appends may come from any worker; Tracks is read once after a full join.
type Collector struct {
	mu     sync.Mutex
	tracks []AudioTrack
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends a track after validating it.
func (c *Collector) Add(track AudioTrack) error {
	if err := track.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = append(c.tracks, track)
	return nil
}

// AddJSON decodes and appends a JSON-encoded track list as produced by the
// rendering surface.
func (c *Collector) AddJSON(raw []byte) error {
	var tracks []AudioTrack
	if err := json.Unmarshal(raw, &tracks); err != nil {
		return fmt.Errorf("decode audio tracks: %w", err)
	}
	for _, track := range tracks {
		if err := c.Add(track); err != nil {
			return err
		}
	}
	return nil
}

// Tracks returns a copy of the accumulated tracks.
func (c *Collector) Tracks() []AudioTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AudioTrack, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Len returns the number of accumulated tracks.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}
