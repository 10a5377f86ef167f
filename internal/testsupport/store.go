package testsupport

import (
	"context"
	"testing"

	"renderforge/internal/config"
	"renderforge/internal/queue"
)

// MustOpenStore opens a queue.Store under the config's log directory and
// registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// EnqueueJob inserts a queued render job for tests using the provided
// store.
func EnqueueJob(t testing.TB, store *queue.Store, compositionID, outputPath string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), &queue.Job{
		CompositionID: compositionID,
		OutputPath:    outputPath,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
