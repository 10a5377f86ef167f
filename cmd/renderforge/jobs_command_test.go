package main

import (
	"context"
	"strconv"
	"testing"

	"renderforge/internal/queue"
	"renderforge/internal/testsupport"
)

func TestJobsListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "No render jobs")
}

func TestJobsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	job := testsupport.EnqueueJob(t, store, "intro", "/tmp/intro.mp4")

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "intro")
	requireContains(t, out, "queued")

	out, _, err = runCLI(t, []string{"jobs", "show", strconv.FormatInt(job.ID, 10)}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, "intro")
	requireContains(t, out, "/tmp/intro.mp4")
}

func TestJobsListFlagsActiveJob(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	job := testsupport.EnqueueJob(t, store, "intro", "/tmp/intro.mp4")
	if _, err := store.Transition(context.Background(), job.ID, queue.StatusBundling, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	out, _, err := runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "is active (bundling)")
}

func TestJobsShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"jobs", "show", "42"}, env.configPath)
	if err == nil {
		t.Fatal("expected missing job error")
	}
	requireContains(t, err.Error(), "job not found")
}

func TestJobsCancelQueued(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	job := testsupport.EnqueueJob(t, store, "intro", "/tmp/intro.mp4")

	out, _, err := runCLI(t, []string{"jobs", "cancel", strconv.FormatInt(job.ID, 10)}, env.configPath)
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	requireContains(t, out, "cancelled")

	updated, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}
}

func TestJobsCancelInvalidID(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"jobs", "cancel", "abc"}, env.configPath)
	if err == nil {
		t.Fatal("expected invalid id error")
	}
	requireContains(t, err.Error(), "invalid job id")
}
