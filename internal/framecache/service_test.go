package framecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"renderforge/internal/services"
)

type countingExtractor struct {
	calls int32
	delay time.Duration
	fail  bool
}

func (e *countingExtractor) ExtractFrame(ctx context.Context, src string, seconds float64, format string) ([]byte, error) {
	atomic.AddInt32(&e.calls, 1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.fail {
		return nil, services.Wrap(services.ErrExtraction, "extract", "decode", "synthetic failure", nil)
	}
	return []byte(fmt.Sprintf("%s@%.3f.%s", src, seconds, format)), nil
}

func TestExtractCachesResult(t *testing.T) {
	extractor := &countingExtractor{}
	svc := NewService(extractor, 1<<20, nil)

	first, err := svc.Extract(context.Background(), "/media/clip.mp4", 2.5, "png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := svc.Extract(context.Background(), "/media/clip.mp4", 2.5, "png")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("expected identical cached payload")
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("expected one extraction, got %d", got)
	}
}

func TestConcurrentRequestsCoalesce(t *testing.T) {
	extractor := &countingExtractor{delay: 30 * time.Millisecond}
	svc := NewService(extractor, 1<<20, nil)

	const requesters = 8
	var wg sync.WaitGroup
	results := make([][]byte, requesters)
	errs := make([]error, requesters)
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Extract(context.Background(), "/media/clip.mp4", 4, "jpeg")
		}(i)
	}
	wg.Wait()

	for i := 0; i < requesters; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if string(results[i]) != string(results[0]) {
			t.Fatalf("request %d returned a different payload", i)
		}
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("expected exactly one underlying extraction, got %d", got)
	}
}

func TestDistinctKeysDoNotCoalesce(t *testing.T) {
	extractor := &countingExtractor{}
	svc := NewService(extractor, 1<<20, nil)
	if _, err := svc.Extract(context.Background(), "/media/clip.mp4", 1, "png"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Extract(context.Background(), "/media/clip.mp4", 1, "jpeg"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Extract(context.Background(), "/media/clip.mp4", 2, "png"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 3 {
		t.Fatalf("expected three extractions, got %d", got)
	}
}

// gatedExtractor blocks inside ExtractFrame until released and fails if
// its context is already cancelled when it finishes.
type gatedExtractor struct {
	started chan struct{}
	release chan struct{}
}

func (e *gatedExtractor) ExtractFrame(ctx context.Context, src string, seconds float64, format string) ([]byte, error) {
	close(e.started)
	<-e.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte("frame"), nil
}

func TestLeaderDisconnectDoesNotFailWaiters(t *testing.T) {
	extractor := &gatedExtractor{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewService(extractor, 1<<20, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Extract(leaderCtx, "/media/clip.mp4", 3, "png")
		leaderErr <- err
	}()
	<-extractor.started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := svc.Extract(context.Background(), "/media/clip.mp4", 3, "png")
		waiterErr <- err
	}()

	cancelLeader()
	close(extractor.release)

	if err := <-waiterErr; err != nil {
		t.Fatalf("waiter failed after leader disconnect: %v", err)
	}
	if err := <-leaderErr; err != nil {
		t.Fatalf("leader failed: %v", err)
	}
}

func TestExtractionFailureRejectsAllWaiters(t *testing.T) {
	extractor := &countingExtractor{delay: 20 * time.Millisecond, fail: true}
	svc := NewService(extractor, 1<<20, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Extract(context.Background(), "/media/clip.mp4", 9, "png")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, services.ErrExtraction) {
			t.Fatalf("waiter %d: expected extraction error, got %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&extractor.calls); got != 1 {
		t.Fatalf("expected one failing extraction, got %d", got)
	}
	if svc.CachedEntries() != 0 {
		t.Fatal("failed extraction must not populate the cache")
	}
}
