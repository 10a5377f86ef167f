package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"renderforge/internal/assets"
	"renderforge/internal/barrier"
)

// Stub is an in-memory rendering surface used by tests and by the dry-run
// path. All sessions opened from one Stub share composition state and the
// audio track set, mirroring how a real surface is global per renderer.
type Stub struct {
	mu          sync.Mutex
	comps       []Composition
	tracks      []assets.AudioTrack
	holdDelay   time.Duration
	stuckFrames map[int]struct{}
	barrier     *barrier.Barrier
	captures    int
}

// NewStub returns a stub hosting the given compositions.
func NewStub(comps ...Composition) *Stub {
	return &Stub{
		comps:       comps,
		stuckFrames: make(map[int]struct{}),
		barrier:     barrier.New(),
	}
}

// SetHoldDelay makes every SetFrame acquire a hold that releases after d.
func (s *Stub) SetHoldDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdDelay = d
}

// MarkFrameStuck makes the given frame acquire a hold that never releases.
func (s *Stub) MarkFrameStuck(frame int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stuckFrames[frame] = struct{}{}
}

// RegisterAudioTrack adds a track to the surface-global audio set.
func (s *Stub) RegisterAudioTrack(track assets.AudioTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

// Captures reports how many frames have been captured across all sessions.
func (s *Stub) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// Barrier exposes the stub's hold registry for tests that script holds
// directly.
func (s *Stub) Barrier() *barrier.Barrier {
	return s.barrier
}

// OpenSession returns a session view over the shared stub state.
func (s *Stub) OpenSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &stubSession{stub: s}, nil
}

type stubSession struct {
	stub  *Stub
	comp  string
	frame int
	props json.RawMessage
}

func (ss *stubSession) Loaded(ctx context.Context) (bool, error) {
	return true, ctx.Err()
}

func (ss *stubSession) Compositions(ctx context.Context) ([]Composition, error) {
	ss.stub.mu.Lock()
	defer ss.stub.mu.Unlock()
	out := make([]Composition, len(ss.stub.comps))
	copy(out, ss.stub.comps)
	return out, ctx.Err()
}

func (ss *stubSession) SetInputProps(ctx context.Context, props json.RawMessage) error {
	ss.props = props
	return ctx.Err()
}

func (ss *stubSession) SetComposition(ctx context.Context, id string) error {
	ss.stub.mu.Lock()
	defer ss.stub.mu.Unlock()
	for _, comp := range ss.stub.comps {
		if comp.ID == id {
			ss.comp = id
			return nil
		}
	}
	return fmt.Errorf("composition %q not registered", id)
}

func (ss *stubSession) SetFrame(ctx context.Context, frame int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ss.frame = frame

	ss.stub.mu.Lock()
	_, stuck := ss.stub.stuckFrames[frame]
	delay := ss.stub.holdDelay
	ss.stub.mu.Unlock()

	if stuck {
		ss.stub.barrier.Acquire(fmt.Sprintf("frame-%d-stuck", frame))
		return nil
	}
	if delay > 0 {
		token := ss.stub.barrier.Acquire(fmt.Sprintf("frame-%d-load", frame))
		time.AfterFunc(delay, func() {
			_ = ss.stub.barrier.Release(token)
		})
	}
	return nil
}

func (ss *stubSession) PendingHoldCount(ctx context.Context) (int, error) {
	return ss.stub.barrier.PendingCount(), ctx.Err()
}

func (ss *stubSession) PendingHoldLabels() []string {
	return ss.stub.barrier.PendingLabels()
}

func (ss *stubSession) CaptureFrame(ctx context.Context, format ImageFormat, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ss.stub.mu.Lock()
	ss.stub.captures++
	ss.stub.mu.Unlock()
	// Deterministic payload so repeated renders are byte-for-byte stable.
	return []byte(fmt.Sprintf("%s:%s:%05d", format, ss.comp, ss.frame)), nil
}

func (ss *stubSession) AudioTracks(ctx context.Context) ([]assets.AudioTrack, error) {
	ss.stub.mu.Lock()
	defer ss.stub.mu.Unlock()
	out := make([]assets.AudioTrack, len(ss.stub.tracks))
	copy(out, ss.stub.tracks)
	return out, ctx.Err()
}

func (ss *stubSession) Close() error {
	return nil
}

var _ Session = (*stubSession)(nil)
var _ HoldInspector = (*stubSession)(nil)
var _ Host = (*Stub)(nil)
