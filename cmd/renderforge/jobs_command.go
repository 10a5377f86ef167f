package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"renderforge/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the render job queue",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No render jobs")
				return nil
			}
			fmt.Fprintln(out, jobsTable(jobs, shouldColorize(out)))
			if active, err := store.ActiveJob(cmd.Context()); err == nil && active != nil {
				fmt.Fprintf(out, "Job %d is active (%s)\n", active.ID, active.Status)
			}
			return nil
		},
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one render job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJobDetail(cmd.OutOrStdout(), job)
			return nil
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or active render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			job, err := store.RequestCancel(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if job.Status == queue.StatusCancelled {
				fmt.Fprintf(out, "Job %d cancelled\n", id)
			} else {
				fmt.Fprintf(out, "Job %d cancel requested (currently %s; stops after the current frame)\n", id, job.Status)
			}
			return nil
		},
	}
}

func openStore(ctx *commandContext) (*queue.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return store, nil
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func printJobDetail(out io.Writer, job *queue.Job) {
	fmt.Fprintf(out, "Job #%d\n", job.ID)
	fmt.Fprintf(out, "  Composition:  %s\n", job.CompositionID)
	fmt.Fprintf(out, "  Status:       %s\n", job.Status)
	fmt.Fprintf(out, "  Progress:     %s\n", formatProgress(job.Progress))
	fmt.Fprintf(out, "  Frames:       %d-%d\n", job.StartFrame, job.EndFrame)
	fmt.Fprintf(out, "  Output:       %s\n", job.OutputPath)
	if job.Codec != "" {
		fmt.Fprintf(out, "  Codec:        %s\n", job.Codec)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:        %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(out, "  Created:      %s\n", job.CreatedAt.Local().Format(timestampLayout))
	fmt.Fprintf(out, "  Updated:      %s\n", job.UpdatedAt.Local().Format(timestampLayout))
}

func formatProgress(progress float64) string {
	return fmt.Sprintf("%d%%", int(progress*100))
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func colorizeStatus(status queue.Status) string {
	switch {
	case status == queue.StatusDone:
		return ansiGreen + string(status) + ansiReset
	case status == queue.StatusError:
		return ansiRed + string(status) + ansiReset
	case status == queue.StatusCancelled:
		return ansiYellow + string(status) + ansiReset
	case status.IsActive():
		return ansiBlue + string(status) + ansiReset
	default:
		return string(status)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
