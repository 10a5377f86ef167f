package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"renderforge/internal/assets"
	"renderforge/internal/config"
	"renderforge/internal/queue"
	"renderforge/internal/services"
	"renderforge/internal/stitcher"
	"renderforge/internal/surface"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

func openTestStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fakeEncoder records stitch invocations and can count the frame files
// present at the moment the encoder runs, before the staging directory is
// cleaned up.
type fakeEncoder struct {
	mu         sync.Mutex
	calls      []stitcher.Options
	frameFiles int
	err        error
}

func (f *fakeEncoder) Stitch(ctx context.Context, opts stitcher.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	entries, err := os.ReadDir(opts.FrameDir)
	if err == nil {
		f.frameFiles = len(entries)
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(opts.OutputPath, []byte("container"), 0o644)
}

func (f *fakeEncoder) lastCall(t *testing.T) stitcher.Options {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("encoder was never invoked")
	}
	return f.calls[len(f.calls)-1]
}

func videoComposition() surface.Composition {
	return surface.Composition{
		ID: "main", DurationInFrames: 10, FPS: 30,
		Width: 1920, Height: 1080, Kind: surface.KindComposition,
	}
}

func stillComposition() surface.Composition {
	return surface.Composition{
		ID: "title-card", DurationInFrames: 1, FPS: 30,
		Width: 1280, Height: 720, Kind: surface.KindStill,
	}
}

func TestProcessVideoJob(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition())
	stub.RegisterAudioTrack(assets.AudioTrack{
		Kind: "audio", Src: "/tmp/music.mp3",
		DurationInFrames: 10, Volume: 1, PlaybackRate: 1,
	})
	encoder := &fakeEncoder{}
	p := New(store, stub, cfg, nil, WithEncoder(encoder))

	output := filepath.Join(t.TempDir(), "out.mp4")
	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    output,
		StartFrame:    0,
		EndFrame:      9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	final, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != queue.StatusDone {
		t.Fatalf("status = %s, want done (%s)", final.Status, final.ErrorMessage)
	}
	if final.Progress != 1 {
		t.Fatalf("progress = %f, want 1", final.Progress)
	}

	call := encoder.lastCall(t)
	if call.FPS != 30 {
		t.Fatalf("encoder fps = %f, want 30", call.FPS)
	}
	if call.FrameCount != 10 {
		t.Fatalf("encoder frame count = %d, want 10", call.FrameCount)
	}
	if call.OutputPath != output {
		t.Fatalf("encoder output = %s, want %s", call.OutputPath, output)
	}
	if len(call.AudioTracks) != 1 || call.AudioTracks[0].Src != "/tmp/music.mp3" {
		t.Fatalf("unexpected audio tracks: %+v", call.AudioTracks)
	}
	if encoder.frameFiles != 10 {
		t.Fatalf("frame files at encode time = %d, want 10", encoder.frameFiles)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("missing output: %v", err)
	}
}

func TestProcessStillJob(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(stillComposition())
	encoder := &fakeEncoder{}
	p := New(store, stub, cfg, nil, WithEncoder(encoder))

	output := filepath.Join(t.TempDir(), "title.png")
	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "title-card",
		OutputPath:    output,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	final, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != queue.StatusDone {
		t.Fatalf("status = %s, want done (%s)", final.Status, final.ErrorMessage)
	}
	if len(encoder.calls) != 0 {
		t.Fatal("stills must not invoke the encoder")
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read still: %v", err)
	}
	if string(got) != "png:title-card:00000" {
		t.Fatalf("still content = %q", got)
	}
}

func TestProcessUnknownComposition(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition(), stillComposition())
	p := New(store, stub, cfg, nil, WithEncoder(&fakeEncoder{}))

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "missing",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		EndFrame:      9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = p.Process(context.Background(), job)
	if !errors.Is(err, services.ErrMetadata) {
		t.Fatalf("expected metadata error, got %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != queue.StatusError {
		t.Fatalf("status = %s, want error", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "main") || !strings.Contains(final.ErrorMessage, "title-card") {
		t.Fatalf("error message should list available ids, got %q", final.ErrorMessage)
	}
}

func TestProcessInvalidFrameRange(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition())
	p := New(store, stub, cfg, nil, WithEncoder(&fakeEncoder{}))

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		StartFrame:    0,
		EndFrame:      99,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = p.Process(context.Background(), job)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestProcessOpenEndedRange(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition())
	encoder := &fakeEncoder{}
	p := New(store, stub, cfg, nil, WithEncoder(encoder))

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		StartFrame:    0,
		EndFrame:      -1,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}
	if encoder.frameFiles != 10 {
		t.Fatalf("frame files = %d, want full composition (10)", encoder.frameFiles)
	}
}

func TestProcessEncodeFailure(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition())
	encoder := &fakeEncoder{
		err: services.Wrap(services.ErrEncode, "encoding", "stitch", "Unknown encoder 'libx265'", nil),
	}
	p := New(store, stub, cfg, nil, WithEncoder(encoder))

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		EndFrame:      9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := p.Process(context.Background(), job); !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected encode error, got %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != queue.StatusError {
		t.Fatalf("status = %s, want error", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "Unknown encoder") {
		t.Fatalf("error message should carry encoder diagnostic, got %q", final.ErrorMessage)
	}
}

func TestProcessCleansStagingDir(t *testing.T) {
	cfg := testConfig(t)
	store := openTestStore(t)
	stub := surface.NewStub(videoComposition())
	p := New(store, stub, cfg, nil, WithEncoder(&fakeEncoder{}))

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		EndFrame:      9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not cleaned: %v", entries)
	}
}

// cancellingBundler requests cancellation of its own job during the
// bundling stage, so the cancel flag is set before frames start.
type cancellingBundler struct {
	store *queue.Store
}

func (b *cancellingBundler) Bundle(ctx context.Context, job *queue.Job) error {
	_, err := b.store.RequestCancel(ctx, job.ID)
	return err
}

func TestProcessCancelRequested(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Concurrency = 1
	store := openTestStore(t)
	stub := surface.NewStub(surface.Composition{
		ID: "main", DurationInFrames: 200, FPS: 30, Kind: surface.KindComposition,
	})
	stub.SetHoldDelay(10 * time.Millisecond)
	p := New(store, stub, cfg, nil,
		WithEncoder(&fakeEncoder{}),
		WithBundler(&cancellingBundler{store: store}),
		WithCancelPollInterval(time.Millisecond),
	)

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "main",
		OutputPath:    filepath.Join(t.TempDir(), "out.mp4"),
		EndFrame:      199,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	err = p.Process(context.Background(), job)
	if !services.IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if stub.Captures() >= 200 {
		t.Fatal("render ran to completion despite cancel request")
	}
}
