// Package stitcher assembles the captured frame sequence and any registered
// audio tracks into the final container file with a single external encoder
// invocation.
package stitcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"renderforge/internal/assets"
	"renderforge/internal/logging"
	"renderforge/internal/services"
	"renderforge/internal/surface"
)

var commandContext = exec.CommandContext

// Options describes one stitching run.
type Options struct {
	FrameDir    string
	FrameFormat surface.ImageFormat
	FrameCount  int
	FPS         float64
	Codec       string
	AudioTracks []assets.AudioTrack
	OutputPath  string
}

// Stitcher shells out to ffmpeg to mux frames and audio.
type Stitcher struct {
	binary string
	logger *slog.Logger
}

// New constructs a stitcher using the given ffmpeg binary.
func New(binary string, logger *slog.Logger) *Stitcher {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stitcher{binary: binary, logger: logging.WithComponent(logger, "stitcher")}
}

// Stitch runs the encoder. Audio tracks whose source files are missing are
// warned about and dropped rather than failing the job.
func (s *Stitcher) Stitch(ctx context.Context, opts Options) error {
	if opts.FPS <= 0 {
		return services.Wrap(services.ErrConfiguration, "encoding", "stitch", fmt.Sprintf("invalid fps %f", opts.FPS), nil)
	}
	if opts.FrameCount <= 0 {
		return services.Wrap(services.ErrConfiguration, "encoding", "stitch", fmt.Sprintf("invalid frame count %d", opts.FrameCount), nil)
	}

	tracks := s.existingTracks(opts.AudioTracks)
	args := BuildArgs(opts, tracks)

	s.logger.Info("launching encoder",
		logging.String("command", s.binary+" "+strings.Join(args, " ")),
		logging.String("output", opts.OutputPath),
		logging.Int("audio_tracks", len(tracks)),
	)

	cmd := commandContext(ctx, s.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrExternalTool, "encoding", "spawn", fmt.Sprintf("encoder binary %q not found", s.binary), err)
		}
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		return services.Wrap(services.ErrEncode, "encoding", "stitch", diagnostic, nil)
	}
	return nil
}

func (s *Stitcher) existingTracks(tracks []assets.AudioTrack) []assets.AudioTrack {
	kept := make([]assets.AudioTrack, 0, len(tracks))
	for _, track := range tracks {
		if _, err := os.Stat(track.Src); err != nil {
			s.logger.Warn("dropping audio track with missing source",
				logging.String("src", track.Src),
				logging.Error(err),
			)
			continue
		}
		kept = append(kept, track)
	}
	return kept
}

// BuildArgs constructs the full encoder argument list for one run.
func BuildArgs(opts Options, tracks []assets.AudioTrack) []string {
	args := []string{
		"-y", "-hide_banner",
		"-framerate", formatFloat(opts.FPS),
		"-i", filepath.Join(opts.FrameDir, "frame-%05d."+opts.FrameFormat.Ext()),
	}
	for _, track := range tracks {
		args = append(args, "-i", track.Src)
	}

	if len(tracks) > 0 {
		graph, output := BuildAudioGraph(tracks, opts.FPS)
		args = append(args,
			"-filter_complex", graph.Serialize(),
			"-map", "0:v",
			"-map", "["+output+"]",
		)
	} else {
		args = append(args, "-map", "0:v")
	}

	args = append(args, codecArgs(opts.Codec, len(tracks) > 0)...)
	// The explicit duration clamps the output to the frame sequence even when
	// every audio chain ends earlier or later than the video.
	args = append(args, "-t", formatSeconds(float64(opts.FrameCount)/opts.FPS), opts.OutputPath)
	return args
}

// BuildAudioGraph builds one chain per track plus a mix stage when more
// than one track exists. It returns the graph and the label of its final
// output.
func BuildAudioGraph(tracks []assets.AudioTrack, fps float64) (Graph, string) {
	graph := Graph{}
	if len(tracks) == 0 {
		return graph, ""
	}
	labels := make([]string, 0, len(tracks))
	for i, track := range tracks {
		label := fmt.Sprintf("a%d", i)
		graph.Chains = append(graph.Chains, Chain{
			Inputs:  []string{inputLabel(i + 1)},
			Filters: trackFilters(track, fps),
			Output:  label,
		})
		labels = append(labels, label)
	}

	if len(tracks) == 1 {
		return graph, labels[0]
	}

	graph.Chains = append(graph.Chains, Chain{
		Inputs: labels,
		Filters: []Filter{{
			Name: "amix",
			Args: []FilterArg{
				{Key: "inputs", Value: fmt.Sprintf("%d", len(tracks))},
				{Key: "duration", Value: "longest"},
				{Key: "normalize", Value: "0"},
			},
		}},
		Output: "aout",
	})
	return graph, "aout"
}

// trackFilters builds the per-track chain: trim in source time, reset
// timestamps, playback rate, timeline delay, volume.
func trackFilters(track assets.AudioTrack, fps float64) []Filter {
	duration := float64(track.DurationInFrames) / fps * track.PlaybackRate
	filters := []Filter{
		{Name: "atrim", Args: []FilterArg{
			{Key: "start", Value: formatSeconds(track.StartFrom)},
			{Key: "end", Value: formatSeconds(track.StartFrom + duration)},
		}},
		{Name: "asetpts", Args: []FilterArg{{Value: "PTS-STARTPTS"}}},
	}
	filters = append(filters, atempoChain(track.PlaybackRate)...)
	if track.StartAtFrame > 0 {
		ms := delayMilliseconds(track.StartAtFrame, fps)
		filters = append(filters, Filter{Name: "adelay", Args: []FilterArg{
			{Value: fmt.Sprintf("%d", ms)},
			{Key: "all", Value: "1"},
		}})
	}
	if track.Volume != 1 {
		filters = append(filters, Filter{Name: "volume", Args: []FilterArg{{Value: formatFloat(track.Volume)}}})
	}
	return filters
}

func codecArgs(codec string, hasAudio bool) []string {
	var args []string
	switch codec {
	case "h265":
		args = []string{"-c:v", "libx265", "-crf", "23", "-pix_fmt", "yuv420p"}
	case "vp8":
		args = []string{"-c:v", "libvpx", "-crf", "10", "-b:v", "1M", "-pix_fmt", "yuv420p"}
	case "vp9":
		args = []string{"-c:v", "libvpx-vp9", "-crf", "28", "-b:v", "0", "-pix_fmt", "yuv420p"}
	default: // h264
		args = []string{"-c:v", "libx264", "-crf", "18", "-pix_fmt", "yuv420p"}
	}
	if hasAudio {
		switch codec {
		case "vp8", "vp9":
			args = append(args, "-c:a", "libopus", "-b:a", "128k")
		default:
			args = append(args, "-c:a", "aac", "-b:a", "320k")
		}
	}
	return args
}
