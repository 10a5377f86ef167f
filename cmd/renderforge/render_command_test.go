package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"renderforge/internal/queue"
)

func TestStillCommandDryRun(t *testing.T) {
	env := setupCLITestEnv(t)

	output := filepath.Join(env.baseDir, "title.png")
	out, _, err := runCLI(t, []string{
		"still", "title-card",
		"--output", output,
		"--dry-run",
	}, env.configPath)
	if err != nil {
		t.Fatalf("still: %v", err)
	}
	requireContains(t, out, "Rendered title-card")

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "png:title-card:00000" {
		t.Fatalf("still content = %q", got)
	}
}

func TestRenderCommandDryRun(t *testing.T) {
	env := setupCLITestEnv(t)

	output := filepath.Join(env.baseDir, "out.mp4")
	out, _, err := runCLI(t, []string{
		"render", "main",
		"--output", output,
		"--dry-run",
		"--dry-run-duration", "12",
	}, env.configPath)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	requireContains(t, out, "Rendered main")
}

func TestRenderCommandRejectsBadCodec(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{
		"render", "main",
		"--output", filepath.Join(env.baseDir, "out.mp4"),
		"--codec", "av2",
		"--dry-run",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected codec validation error")
	}
	requireContains(t, err.Error(), "unsupported codec")
}

func TestRenderCommandRejectsBadProps(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{
		"render", "main",
		"--output", filepath.Join(env.baseDir, "out.mp4"),
		"--props", "{not json",
		"--dry-run",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected props validation error")
	}
	requireContains(t, err.Error(), "valid JSON")
}

func TestRenderCommandResetsInterruptedJobs(t *testing.T) {
	env := setupCLITestEnv(t)

	// Leave a job stranded mid-render, as a crashed process would.
	store, err := queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	stuck, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: "old",
		OutputPath:    filepath.Join(env.baseDir, "old.mp4"),
		EndFrame:      9,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for _, status := range []queue.Status{queue.StatusBundling, queue.StatusFetchingMetadata, queue.StatusRendering} {
		if _, err := store.Transition(context.Background(), stuck.ID, status, ""); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	output := filepath.Join(env.baseDir, "fresh.png")
	if _, _, err := runCLI(t, []string{
		"still", "title-card",
		"--output", output,
		"--dry-run",
	}, env.configPath); err != nil {
		t.Fatalf("still: %v", err)
	}

	store, err = queue.Open(env.cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	final, err := store.GetJob(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != queue.StatusError {
		t.Fatalf("stuck job status = %s, want error", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "interrupted") {
		t.Fatalf("expected interruption message, got %q", final.ErrorMessage)
	}
}

func TestRenderCommandMissingRenderer(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{
		"still", "anything",
		"--output", filepath.Join(env.baseDir, "out.png"),
		"--renderer", filepath.Join(env.baseDir, "no-such-renderer"),
	}, env.configPath)
	if err == nil {
		t.Fatal("expected failure when the renderer binary is missing")
	}
	requireContains(t, err.Error(), "render failed")
}
