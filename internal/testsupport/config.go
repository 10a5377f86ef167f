// Package testsupport provides shared fixtures for package tests: a
// config seeded with per-test temp directories and a job store with
// registered cleanup.
package testsupport

import (
	"path/filepath"
	"testing"

	"renderforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaRoot = filepath.Join(base, "media")
	cfg.Paths.ExtractBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithConcurrency overrides the render worker count on the test config.
func WithConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Render.Concurrency = n
	}
}

// WithCodec overrides the default output codec on the test config.
func WithCodec(codec string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Encoding.Codec = codec
	}
}
