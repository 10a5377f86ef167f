// Package deps checks the availability of external binaries the render
// pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"renderforge/internal/config"
)

// Requirement defines an external dependency the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Default returns the requirements for a configured installation: the
// encoder binary and the rendering-surface binary. The surface is
// optional because dry runs and custom --renderer overrides bypass it.
func Default(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	if cfg != nil && cfg.Encoding.FFmpegBinary != "" {
		ffmpeg = cfg.Encoding.FFmpegBinary
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Stitches frames and audio, extracts video frames",
		},
		{
			Name:        "Rendering surface",
			Command:     "renderforge-surface",
			Description: "Renders scene frames for capture",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
