package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"renderforge/internal/extractserver"
	"renderforge/internal/framecache"
)

func newServeExtractCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve-extract",
		Short: "Serve the video frame extraction endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			if bind == "" {
				bind = cfg.Paths.ExtractBind
			}
			extractor := framecache.NewFFmpegExtractor(cfg.Encoding.FFmpegBinary)
			budget := int64(cfg.FrameCache.BudgetMiB) << 20
			service := framecache.NewService(extractor, budget, logger)
			server := extractserver.New(bind, cfg.Paths.MediaRoot, service, logger)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := server.Start(signalCtx); err != nil {
				return fmt.Errorf("start extract server: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extraction server listening on %s\n", server.Addr())

			<-signalCtx.Done()
			server.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from config)")
	return cmd
}
