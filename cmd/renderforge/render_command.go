package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"renderforge/internal/config"
	"renderforge/internal/logging"
	"renderforge/internal/pipeline"
	"renderforge/internal/queue"
	"renderforge/internal/surface"
)

type renderFlags struct {
	output       string
	codec        string
	startFrame   int
	endFrame     int
	concurrency  int
	props        string
	renderer     string
	rendererArgs []string
	dryRun       bool
	dryDuration  int
	dryFPS       float64
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render <composition-id>",
		Short: "Render a composition to a video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenderJob(cmd, ctx, args[0], surface.KindComposition, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file path (required)")
	cmd.Flags().StringVar(&flags.codec, "codec", "", "Output codec: h264, h265, vp8, vp9 (default from config)")
	cmd.Flags().IntVar(&flags.startFrame, "start", 0, "First frame to render")
	cmd.Flags().IntVar(&flags.endFrame, "end", -1, "Last frame to render (-1 renders to the end of the composition)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Render session count (default from config)")
	cmd.Flags().StringVar(&flags.props, "props", "", "Input props as a JSON object")
	addRendererFlags(cmd, flags)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newStillCommand(ctx *commandContext) *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "still <composition-id>",
		Short: "Render a single frame to an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenderJob(cmd, ctx, args[0], surface.KindStill, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file path (required)")
	cmd.Flags().IntVar(&flags.startFrame, "frame", 0, "Frame to capture")
	cmd.Flags().StringVar(&flags.props, "props", "", "Input props as a JSON object")
	addRendererFlags(cmd, flags)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func addRendererFlags(cmd *cobra.Command, flags *renderFlags) {
	cmd.Flags().StringVar(&flags.renderer, "renderer", "", "Rendering surface binary (default renderforge-surface)")
	cmd.Flags().StringArrayVar(&flags.rendererArgs, "renderer-arg", nil, "Extra argument passed to the renderer (repeatable)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Render against the in-memory stub surface")
	cmd.Flags().IntVar(&flags.dryDuration, "dry-run-duration", 90, "Stub composition duration in frames")
	cmd.Flags().Float64Var(&flags.dryFPS, "dry-run-fps", 30, "Stub composition frame rate")
}

func runRenderJob(cmd *cobra.Command, ctx *commandContext, compositionID string, kind surface.CompositionKind, flags *renderFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if flags.codec != "" && !config.ValidCodec(flags.codec) {
		return fmt.Errorf("unsupported codec %q (expected h264, h265, vp8, or vp9)", flags.codec)
	}
	props := strings.TrimSpace(flags.props)
	if props != "" && !json.Valid([]byte(props)) {
		return fmt.Errorf("--props must be valid JSON")
	}
	outputPath, err := config.ExpandPath(flags.output)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	release, err := acquireInstanceLock(cfg)
	if err != nil {
		return err
	}
	defer release()

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	// The instance lock is held, so any job still marked active was left
	// behind by a crashed run and will never progress.
	reset, err := store.ResetStuckJobs(cmd.Context(), "interrupted by process exit")
	if err != nil {
		return err
	}
	if reset > 0 {
		logger.Warn("reset interrupted jobs", logging.Int64("count", reset))
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	endFrame := flags.endFrame
	if kind == surface.KindStill {
		endFrame = flags.startFrame
	}
	job, err := store.Enqueue(signalCtx, &queue.Job{
		CompositionID:  compositionID,
		OutputPath:     outputPath,
		Codec:          flags.codec,
		Concurrency:    flags.concurrency,
		StartFrame:     flags.startFrame,
		EndFrame:       endFrame,
		InputPropsJSON: props,
	})
	if err != nil {
		return err
	}

	host := buildHost(compositionID, kind, flags)
	p := pipeline.New(store, host, cfg, logger)
	scheduler := pipeline.NewScheduler(store, p, logger, 0)
	if _, err := scheduler.ProcessQueue(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return reportJobOutcome(cmd, store, job.ID)
}

func buildHost(compositionID string, kind surface.CompositionKind, flags *renderFlags) surface.Host {
	if flags.dryRun {
		return surface.NewStub(surface.Composition{
			ID:               compositionID,
			DurationInFrames: flags.dryDuration,
			FPS:              flags.dryFPS,
			Kind:             kind,
		})
	}
	opts := []surface.ProcessOption{surface.WithBinary(flags.renderer)}
	if len(flags.rendererArgs) > 0 {
		opts = append(opts, surface.WithArgs(flags.rendererArgs...))
	}
	return surface.NewProcessHost(opts...)
}

func reportJobOutcome(cmd *cobra.Command, store *queue.Store, jobID int64) error {
	final, err := store.GetJob(context.Background(), jobID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch final.Status {
	case queue.StatusDone:
		fmt.Fprintf(out, "Rendered %s to %s\n", final.CompositionID, final.OutputPath)
		return nil
	case queue.StatusCancelled:
		fmt.Fprintf(out, "Render of %s was cancelled\n", final.CompositionID)
		return nil
	default:
		return fmt.Errorf("render failed: %s", final.ErrorMessage)
	}
}
