package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"

	"renderforge/internal/config"
	"renderforge/internal/logging"
)

// newLogger builds the CLI logger from config, writing to stderr so table
// and image output on stdout stays clean.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// acquireInstanceLock takes the single-renderer lock under the log
// directory. Two concurrent renders would fight over the job store and
// the staging directory.
func acquireInstanceLock(cfg *config.Config) (func(), error) {
	lockPath := filepath.Join(cfg.Paths.LogDir, "renderforge.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, errors.New("another renderforge render is already running")
	}
	return func() { _ = lock.Unlock() }, nil
}
