package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"renderforge/internal/logging"
	"renderforge/internal/queue"
	"renderforge/internal/services"
)

const defaultQueuePoll = 2 * time.Second

// Scheduler drains the job queue one job at a time. At most one job is
// ever active; when it reaches a terminal status the next queued job
// starts immediately.
type Scheduler struct {
	store        *queue.Store
	pipeline     *Pipeline
	logger       *slog.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	draining bool
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler constructs a scheduler over the given store and pipeline.
// A non-positive pollInterval falls back to the default.
func NewScheduler(store *queue.Store, pipeline *Pipeline, logger *slog.Logger, pollInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = defaultQueuePoll
	}
	return &Scheduler{
		store:        store,
		pipeline:     pipeline,
		logger:       logging.WithComponent(logger, "scheduler"),
		pollInterval: pollInterval,
	}
}

// ProcessQueue runs queued jobs until the queue is empty and returns how
// many it processed. Concurrent calls collapse: while a drain is already
// running, additional calls return immediately with zero.
func (s *Scheduler) ProcessQueue(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return 0, nil
	}
	s.draining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		job, err := s.store.NextQueued(ctx)
		if err != nil {
			return processed, err
		}
		if job == nil {
			return processed, nil
		}
		if err := s.pipeline.Process(ctx, job); err != nil && !services.IsCancelled(err) {
			// Process already recorded the failure on the job row; the
			// drain moves on to the next queued job.
			s.logger.Warn("job ended in error",
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(err),
			)
		}
		processed++
	}
}

// Start begins background queue processing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.loop(runCtx)
	return nil
}

// Stop terminates background processing and waits for the active drain to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		if _, err := s.ProcessQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("queue drain failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}
