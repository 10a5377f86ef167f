// Package capture drives a pool of rendering-surface sessions through the
// frame capture loop: set frame, await the hold barrier, capture the image.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"renderforge/internal/assets"
	"renderforge/internal/logging"
	"renderforge/internal/services"
	"renderforge/internal/surface"
)

const (
	// DefaultFrameTimeout bounds how long a frame's holds may stay
	// outstanding before the whole render fails.
	DefaultFrameTimeout = 30 * time.Second
	defaultPollInterval = 5 * time.Millisecond
)

// FrameTask is a single frame index plus its target output path. Consumed
// exactly once by whichever worker dequeues it.
type FrameTask struct {
	Frame      int
	OutputPath string
}

// Options configures one capture run.
type Options struct {
	CompositionID string
	InputProps    json.RawMessage
	StartFrame    int
	EndFrame      int
	Concurrency   int
	OutputDir     string
	Format        surface.ImageFormat
	Quality       int
	FrameTimeout  time.Duration
	PollInterval  time.Duration
	Profile       bool
	// OnFrame is invoked after each captured frame with the number of
	// frames done so far and the total frame count.
	OnFrame func(done, total int)
}

// Result carries the outcome of a capture run.
type Result struct {
	Frames      int
	AudioTracks []assets.AudioTrack
	Profile     *Profile
}

// OutputName returns the deterministic zero-padded filename for a frame.
func OutputName(frame int, format surface.ImageFormat) string {
	return fmt.Sprintf("frame-%05d.%s", frame, format.Ext())
}

// Run captures every frame in [StartFrame, EndFrame] using a pool of
// sessions opened from host. Frame order across workers is irrelevant;
// final ordering is reconstructed from filenames.
func Run(ctx context.Context, host surface.Host, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.WithContext(ctx, logging.WithComponent(logger, "capture"))

	if opts.EndFrame < opts.StartFrame {
		return nil, services.Wrap(services.ErrConfiguration, "rendering", "frame range",
			fmt.Sprintf("end frame %d before start frame %d", opts.EndFrame, opts.StartFrame), nil)
	}
	total := opts.EndFrame - opts.StartFrame + 1

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > total {
		concurrency = total
	}
	frameTimeout := opts.FrameTimeout
	if frameTimeout <= 0 {
		frameTimeout = DefaultFrameTimeout
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}

	sessions, err := openSessions(ctx, host, concurrency, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, session := range sessions {
			_ = session.Close()
		}
	}()

	tasks := make(chan FrameTask, total)
	for frame := opts.StartFrame; frame <= opts.EndFrame; frame++ {
		tasks <- FrameTask{
			Frame:      frame,
			OutputPath: filepath.Join(opts.OutputDir, OutputName(frame, opts.Format)),
		}
	}
	close(tasks)

	var done atomic.Int64
	var recorder *timingRecorder
	if opts.Profile {
		recorder = newTimingRecorder(total)
	}
	started := time.Now()

	group, groupCtx := errgroup.WithContext(ctx)
	for i, session := range sessions {
		worker := i
		sess := session
		group.Go(func() error {
			return captureWorker(groupCtx, sess, tasks, workerConfig{
				worker:       worker,
				total:        total,
				format:       opts.Format,
				quality:      opts.Quality,
				frameTimeout: frameTimeout,
				pollInterval: pollInterval,
				recorder:     recorder,
				done:         &done,
				onFrame:      opts.OnFrame,
				logger:       logger,
			})
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	// The audio set is global to the rendering surface, so any one session
	// can report it after all workers have drained the queue.
	tracks, err := sessions[0].AudioTracks(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("read audio tracks: %w", err)
	}
	collector := assets.NewCollector()
	for _, track := range tracks {
		if err := collector.Add(track); err != nil {
			return nil, services.Wrap(services.ErrMetadata, "rendering", "audio tracks", err.Error(), nil)
		}
	}

	result := &Result{Frames: total, AudioTracks: collector.Tracks()}
	if recorder != nil {
		result.Profile = recorder.profile(time.Since(started))
	}
	return result, nil
}

func openSessions(ctx context.Context, host surface.Host, concurrency int, opts Options) ([]surface.Session, error) {
	sessions := make([]surface.Session, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		session, err := host.OpenSession(ctx)
		if err != nil {
			closeAll(sessions)
			return nil, fmt.Errorf("open render session %d: %w", i, err)
		}
		if err := bindSession(ctx, session, opts); err != nil {
			_ = session.Close()
			closeAll(sessions)
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func bindSession(ctx context.Context, session surface.Session, opts Options) error {
	loaded, err := session.Loaded(ctx)
	if err != nil {
		return fmt.Errorf("query surface readiness: %w", err)
	}
	if !loaded {
		return services.Wrap(services.ErrMetadata, "rendering", "bind session", "rendering surface never reported loaded", nil)
	}
	if len(opts.InputProps) > 0 {
		if err := session.SetInputProps(ctx, opts.InputProps); err != nil {
			return fmt.Errorf("set input props: %w", err)
		}
	}
	if err := session.SetComposition(ctx, opts.CompositionID); err != nil {
		return fmt.Errorf("bind composition %s: %w", opts.CompositionID, err)
	}
	return nil
}

func closeAll(sessions []surface.Session) {
	for _, session := range sessions {
		_ = session.Close()
	}
}

type workerConfig struct {
	worker       int
	total        int
	format       surface.ImageFormat
	quality      int
	frameTimeout time.Duration
	pollInterval time.Duration
	recorder     *timingRecorder
	done         *atomic.Int64
	onFrame      func(done, total int)
	logger       *slog.Logger
}

func captureWorker(ctx context.Context, session surface.Session, tasks <-chan FrameTask, cfg workerConfig) error {
	for {
		// Cancellation is checked between tasks only; a started frame
		// always runs to completion.
		if err := ctx.Err(); err != nil {
			return services.Wrap(services.ErrCancelled, "rendering", "capture", "stop requested", nil)
		}
		task, ok := <-tasks
		if !ok {
			return nil
		}
		if err := captureFrame(context.WithoutCancel(ctx), session, task, cfg); err != nil {
			return err
		}
		done := int(cfg.done.Add(1))
		if cfg.onFrame != nil {
			cfg.onFrame(done, cfg.total)
		}
	}
}

func captureFrame(ctx context.Context, session surface.Session, task FrameTask, cfg workerConfig) error {
	frameStart := time.Now()
	if err := session.SetFrame(ctx, task.Frame); err != nil {
		return fmt.Errorf("set frame %d: %w", task.Frame, err)
	}
	updateDone := time.Now()

	if err := awaitHolds(ctx, session, task.Frame, cfg.frameTimeout, cfg.pollInterval); err != nil {
		return err
	}
	holdsDone := time.Now()

	image, err := session.CaptureFrame(ctx, cfg.format, cfg.quality)
	if err != nil {
		return fmt.Errorf("capture frame %d: %w", task.Frame, err)
	}
	if err := os.WriteFile(task.OutputPath, image, 0o644); err != nil {
		return fmt.Errorf("write frame %d: %w", task.Frame, err)
	}
	captureDone := time.Now()

	if cfg.recorder != nil {
		cfg.recorder.record(Timings{
			Frame:         task.Frame,
			SurfaceUpdate: updateDone.Sub(frameStart),
			BarrierWait:   holdsDone.Sub(updateDone),
			Capture:       captureDone.Sub(holdsDone),
		})
	}
	cfg.logger.Debug("captured frame",
		logging.Int(logging.FieldWorker, cfg.worker),
		logging.Int(logging.FieldFrame, task.Frame),
		logging.Duration("elapsed", captureDone.Sub(frameStart)),
	)
	return nil
}

// awaitHolds polls the session's pending hold count until it reaches zero
// or the per-frame timeout elapses. A stuck hold is treated as a fatal
// rendering-surface bug, not a transient fault.
func awaitHolds(ctx context.Context, session surface.Session, frame int, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		pending, err := session.PendingHoldCount(ctx)
		if err != nil {
			return fmt.Errorf("query holds for frame %d: %w", frame, err)
		}
		if pending == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			detail := fmt.Sprintf("frame %d: %d holds outstanding after %s", frame, pending, timeout)
			if inspector, ok := session.(surface.HoldInspector); ok {
				detail = fmt.Sprintf("%s: %v", detail, inspector.PendingHoldLabels())
			}
			return services.Wrap(services.ErrFrameTimeout, "rendering", "await holds", detail, nil)
		}
		time.Sleep(interval)
	}
}
