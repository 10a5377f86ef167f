package surface

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"renderforge/internal/assets"
)

var commandContext = exec.CommandContext

// ProcessOption configures the subprocess-backed host.
type ProcessOption func(*ProcessHost)

// WithBinary overrides the renderer binary name.
func WithBinary(binary string) ProcessOption {
	return func(h *ProcessHost) {
		if binary != "" {
			h.binary = binary
		}
	}
}

// WithArgs appends extra arguments to the renderer invocation.
func WithArgs(args ...string) ProcessOption {
	return func(h *ProcessHost) {
		h.args = append(h.args, args...)
	}
}

// ProcessHost launches one renderer subprocess per session and drives it
// over line-delimited JSON on stdio.
type ProcessHost struct {
	binary string
	args   []string
}

// NewProcessHost constructs a host using defaults.
func NewProcessHost(opts ...ProcessOption) *ProcessHost {
	host := &ProcessHost{binary: "renderforge-surface"}
	for _, opt := range opts {
		opt(host)
	}
	return host
}

// OpenSession spawns a renderer subprocess and waits for nothing; callers
// poll Loaded before issuing frame commands.
func (h *ProcessHost) OpenSession(ctx context.Context) (Session, error) {
	cmd := commandContext(ctx, h.binary, h.args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start renderer %s: %w", h.binary, err)
	}
	return &processSession{
		cmd:     cmd,
		stdin:   stdin,
		scanner: bufio.NewScanner(stdout),
	}, nil
}

type processSession struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	nextID  int64
	closed  bool
}

type rpcRequest struct {
	ID    int64           `json:"id"`
	Op    string          `json:"op"`
	Frame *int            `json:"frame,omitempty"`
	Comp  string          `json:"composition,omitempty"`
	Props json.RawMessage `json:"props,omitempty"`
	Image *imageParams    `json:"image,omitempty"`
}

type imageParams struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// call issues one request and reads responses until the matching id
// arrives. The renderer may interleave log lines; non-JSON lines are
// skipped.
func (s *processSession) call(ctx context.Context, req rpcRequest) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.nextID++
	req.ID = s.nextID
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := s.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("write %s request: %w", req.Op, err)
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			continue
		}
		if resp.ID != req.ID {
			continue
		}
		if !resp.OK {
			return nil, fmt.Errorf("renderer %s: %s", req.Op, resp.Error)
		}
		return resp.Result, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read renderer output: %w", err)
	}
	return nil, fmt.Errorf("renderer exited during %s", req.Op)
}

func (s *processSession) Loaded(ctx context.Context) (bool, error) {
	result, err := s.call(ctx, rpcRequest{Op: "loaded"})
	if err != nil {
		return false, err
	}
	var loaded bool
	if err := json.Unmarshal(result, &loaded); err != nil {
		return false, fmt.Errorf("decode loaded flag: %w", err)
	}
	return loaded, nil
}

func (s *processSession) Compositions(ctx context.Context) ([]Composition, error) {
	result, err := s.call(ctx, rpcRequest{Op: "compositions"})
	if err != nil {
		return nil, err
	}
	var comps []Composition
	if err := json.Unmarshal(result, &comps); err != nil {
		return nil, fmt.Errorf("decode compositions: %w", err)
	}
	return comps, nil
}

func (s *processSession) SetInputProps(ctx context.Context, props json.RawMessage) error {
	_, err := s.call(ctx, rpcRequest{Op: "setInputProps", Props: props})
	return err
}

func (s *processSession) SetComposition(ctx context.Context, id string) error {
	_, err := s.call(ctx, rpcRequest{Op: "setComposition", Comp: id})
	return err
}

func (s *processSession) SetFrame(ctx context.Context, frame int) error {
	_, err := s.call(ctx, rpcRequest{Op: "setFrame", Frame: &frame})
	return err
}

func (s *processSession) PendingHoldCount(ctx context.Context) (int, error) {
	result, err := s.call(ctx, rpcRequest{Op: "pendingHoldCount"})
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(result, &count); err != nil {
		return 0, fmt.Errorf("decode hold count: %w", err)
	}
	return count, nil
}

func (s *processSession) CaptureFrame(ctx context.Context, format ImageFormat, quality int) ([]byte, error) {
	result, err := s.call(ctx, rpcRequest{Op: "captureFrame", Image: &imageParams{Format: string(format), Quality: quality}})
	if err != nil {
		return nil, err
	}
	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode capture payload: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode capture image: %w", err)
	}
	return data, nil
}

func (s *processSession) AudioTracks(ctx context.Context) ([]assets.AudioTrack, error) {
	result, err := s.call(ctx, rpcRequest{Op: "audioTracks"})
	if err != nil {
		return nil, err
	}
	collector := assets.NewCollector()
	if err := collector.AddJSON(result); err != nil {
		return nil, err
	}
	return collector.Tracks(), nil
}

func (s *processSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdin.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return nil
	}
	return err
}

var _ Session = (*processSession)(nil)
var _ Host = (*ProcessHost)(nil)
