// Package logging constructs the slog loggers used across renderforge and
// provides the attribute helpers shared by the pipeline stages.
package logging
