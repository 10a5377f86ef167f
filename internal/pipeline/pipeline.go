// Package pipeline orchestrates render jobs through their stages: bundle
// the scene, resolve composition metadata, capture frames, and stitch the
// final output file.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"renderforge/internal/capture"
	"renderforge/internal/config"
	"renderforge/internal/fileutil"
	"renderforge/internal/logging"
	"renderforge/internal/queue"
	"renderforge/internal/services"
	"renderforge/internal/stitcher"
	"renderforge/internal/surface"
)

const (
	// Progress splits: frame capture advances [0, captureShare), the
	// encode occupies the remainder up to 1.0.
	captureShare = 0.9

	defaultCancelPoll = 250 * time.Millisecond
)

// Encoder runs the final stitching step. Satisfied by *stitcher.Stitcher.
type Encoder interface {
	Stitch(ctx context.Context, opts stitcher.Options) error
}

// Bundler prepares the scene bundle before metadata resolution. The
// default implementation is a no-op for pre-bundled scenes.
type Bundler interface {
	Bundle(ctx context.Context, job *queue.Job) error
}

type nopBundler struct{}

func (nopBundler) Bundle(context.Context, *queue.Job) error { return nil }

// Pipeline runs one job at a time through the stage sequence, recording
// status and progress in the job store as it goes.
type Pipeline struct {
	store      *queue.Store
	host       surface.Host
	encoder    Encoder
	bundler    Bundler
	cfg        *config.Config
	logger     *slog.Logger
	cancelPoll time.Duration
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithBundler replaces the no-op bundler.
func WithBundler(b Bundler) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.bundler = b
		}
	}
}

// WithEncoder replaces the default ffmpeg stitcher.
func WithEncoder(e Encoder) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.encoder = e
		}
	}
}

// WithCancelPollInterval adjusts how often an active job's cancel flag is
// checked.
func WithCancelPollInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.cancelPoll = d
		}
	}
}

// New constructs a pipeline over the given store, surface host, and
// configuration.
func New(store *queue.Store, host surface.Host, cfg *config.Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		store:      store,
		host:       host,
		encoder:    stitcher.New(cfg.Encoding.FFmpegBinary, logger),
		bundler:    nopBundler{},
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "pipeline"),
		cancelPoll: defaultCancelPoll,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one job to a terminal status. Whatever happens, the job
// row ends up terminal: done, cancelled, or error with a diagnostic
// message. The returned error reports failures other than cancellation.
func (p *Pipeline) Process(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("starting job",
		logging.String("composition", job.CompositionID),
		logging.String("output", job.OutputPath),
	)

	err := p.run(ctx, job, logger)
	if err == nil {
		logger.Info("job complete", logging.String("output", job.OutputPath))
		return nil
	}

	status := services.FailureStatus(err)
	message := err.Error()
	if status == queue.StatusCancelled {
		message = ""
	}
	// The failure record must land even when ctx itself was cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if _, terr := p.store.Transition(recordCtx, job.ID, status, message); terr != nil {
		logger.Error("record terminal status",
			logging.String("status", string(status)),
			logging.Error(terr),
		)
	}
	if status == queue.StatusCancelled {
		logger.Info("job cancelled")
		return err
	}
	logger.Error("job failed", logging.Error(err))
	return err
}

func (p *Pipeline) run(ctx context.Context, job *queue.Job, logger *slog.Logger) error {
	job, err := p.store.Transition(ctx, job.ID, queue.StatusBundling, "")
	if err != nil {
		return err
	}
	if err := p.bundler.Bundle(ctx, job); err != nil {
		return services.Wrap(services.ErrConfiguration, "bundling", "bundle scene", "", err)
	}

	job, err = p.store.Transition(ctx, job.ID, queue.StatusFetchingMetadata, "")
	if err != nil {
		return err
	}
	comp, err := p.fetchMetadata(ctx, job)
	if err != nil {
		return err
	}

	startFrame, endFrame, err := resolveFrameRange(job, comp)
	if err != nil {
		return err
	}

	job, err = p.store.Transition(ctx, job.ID, queue.StatusRendering, "")
	if err != nil {
		return err
	}

	frameDir := filepath.Join(p.cfg.Paths.StagingDir, "render-"+uuid.NewString())
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(frameDir)

	renderCtx, cancelRender := context.WithCancel(services.WithStage(ctx, string(queue.StatusRendering)))
	defer cancelRender()
	watchDone := make(chan struct{})
	go p.watchCancel(renderCtx, job.ID, cancelRender, watchDone)

	format := surface.ImageFormat(p.cfg.Render.ImageFormat)
	result, err := capture.Run(renderCtx, p.host, capture.Options{
		CompositionID: job.CompositionID,
		InputProps:    json.RawMessage(job.InputPropsJSON),
		StartFrame:    startFrame,
		EndFrame:      endFrame,
		Concurrency:   p.concurrency(job),
		OutputDir:     frameDir,
		Format:        format,
		Quality:       p.cfg.Render.JPEGQuality,
		FrameTimeout:  time.Duration(p.cfg.Render.FrameTimeoutSeconds) * time.Second,
		Profile:       p.cfg.Render.Profile,
		OnFrame: func(done, total int) {
			progress := captureShare * float64(done) / float64(total)
			if perr := p.store.UpdateProgress(context.WithoutCancel(ctx), job.ID, progress); perr != nil {
				logger.Warn("update progress", logging.Error(perr))
			}
		},
	}, p.logger)
	cancelRender()
	<-watchDone
	if err != nil {
		return err
	}
	if result.Profile != nil {
		logProfile(logger, result.Profile)
	}

	if comp.Kind == surface.KindStill {
		src := filepath.Join(frameDir, capture.OutputName(startFrame, format))
		if err := fileutil.CopyFile(src, job.OutputPath); err != nil {
			return fmt.Errorf("write still output: %w", err)
		}
		if perr := p.store.UpdateProgress(ctx, job.ID, 1); perr != nil {
			logger.Warn("update progress", logging.Error(perr))
		}
		_, err = p.store.Transition(ctx, job.ID, queue.StatusDone, "")
		return err
	}

	job, err = p.store.Transition(ctx, job.ID, queue.StatusEncoding, "")
	if err != nil {
		return err
	}
	if perr := p.store.UpdateProgress(ctx, job.ID, captureShare); perr != nil {
		logger.Warn("update progress", logging.Error(perr))
	}
	// Last cancel window before the encoder subprocess is spawned; once
	// the encoder runs, the job completes or fails like any other.
	current, err := p.store.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.CancelRequested {
		return services.Wrap(services.ErrCancelled, "encoding", "stitch", "stop requested", nil)
	}

	if err := p.encoder.Stitch(ctx, stitcher.Options{
		FrameDir:    frameDir,
		FrameFormat: format,
		FrameCount:  result.Frames,
		FPS:         comp.FPS,
		Codec:       p.codec(job),
		AudioTracks: result.AudioTracks,
		OutputPath:  job.OutputPath,
	}); err != nil {
		return err
	}

	if perr := p.store.UpdateProgress(ctx, job.ID, 1); perr != nil {
		logger.Warn("update progress", logging.Error(perr))
	}
	_, err = p.store.Transition(ctx, job.ID, queue.StatusDone, "")
	return err
}

// fetchMetadata opens a throwaway session to list the surface's
// compositions and resolve the job's id against them.
func (p *Pipeline) fetchMetadata(ctx context.Context, job *queue.Job) (surface.Composition, error) {
	session, err := p.host.OpenSession(ctx)
	if err != nil {
		return surface.Composition{}, fmt.Errorf("open metadata session: %w", err)
	}
	defer session.Close()

	comps, err := session.Compositions(ctx)
	if err != nil {
		return surface.Composition{}, fmt.Errorf("list compositions: %w", err)
	}
	ids := make([]string, 0, len(comps))
	for _, comp := range comps {
		if comp.ID == job.CompositionID {
			return comp, nil
		}
		ids = append(ids, comp.ID)
	}
	return surface.Composition{}, services.Wrap(services.ErrMetadata, "fetching-metadata", "resolve composition",
		fmt.Sprintf("unknown composition %q, available: %s", job.CompositionID, strings.Join(ids, ", ")), nil)
}

// resolveFrameRange fills in an open-ended range (end frame < 0 means the
// whole composition) and validates the result against the composition's
// duration. Stills always render exactly their start frame.
func resolveFrameRange(job *queue.Job, comp surface.Composition) (int, int, error) {
	start, end := job.StartFrame, job.EndFrame
	if comp.Kind == surface.KindStill {
		end = start
	} else if end < 0 {
		end = comp.DurationInFrames - 1
	}
	if start < 0 || end < start || end >= comp.DurationInFrames {
		return 0, 0, services.Wrap(services.ErrConfiguration, "rendering", "frame range",
			fmt.Sprintf("frames [%d, %d] outside composition %q (0..%d)",
				start, end, comp.ID, comp.DurationInFrames-1), nil)
	}
	return start, end, nil
}

func (p *Pipeline) concurrency(job *queue.Job) int {
	if job.Concurrency > 0 {
		return job.Concurrency
	}
	return p.cfg.Render.Concurrency
}

func (p *Pipeline) codec(job *queue.Job) string {
	if job.Codec != "" {
		return job.Codec
	}
	return p.cfg.Encoding.Codec
}

// watchCancel polls the job's cancel flag while frames render, cancelling
// the render context when a cancel request lands. Workers observe the
// cancellation between frame tasks.
func (p *Pipeline) watchCancel(ctx context.Context, jobID int64, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cancelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		job, err := p.store.GetJob(ctx, jobID)
		if err != nil {
			continue
		}
		if job.CancelRequested {
			cancel()
			return
		}
	}
}

func logProfile(logger *slog.Logger, profile *capture.Profile) {
	logger.Info("render profile",
		logging.String("bottleneck", profile.Bottleneck),
		logging.Float64("fps", profile.FramesPerSecond),
		logging.Duration("surface_update", profile.SurfaceUpdate.Total),
		logging.Duration("barrier_wait", profile.BarrierWait.Total),
		logging.Duration("capture", profile.Capture.Total),
	)
}
