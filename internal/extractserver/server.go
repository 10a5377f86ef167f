// Package extractserver exposes the frame extraction service over HTTP so
// the rendering surface can fetch exact video frames without decoding video
// itself.
package extractserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"renderforge/internal/framecache"
	"renderforge/internal/logging"
)

// Server serves the /extract contract backed by a framecache.Service.
type Server struct {
	bind      string
	mediaRoot string
	service   *framecache.Service
	logger    *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New constructs a server. mediaRoot, when non-empty, confines source paths
// to that directory tree.
func New(bind, mediaRoot string, service *framecache.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:      bind,
		mediaRoot: filepath.Clean(mediaRoot),
		service:   service,
		logger:    logging.WithComponent(logger, "extractserver"),
	}

	router := chi.NewRouter()
	router.Get("/extract", srv.handleExtract)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("extract listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("extract server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("extract server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	src := strings.TrimSpace(r.URL.Query().Get("src"))
	if src == "" {
		http.Error(w, "src parameter is required", http.StatusBadRequest)
		return
	}

	seconds, err := strconv.ParseFloat(r.URL.Query().Get("time"), 64)
	if err != nil || seconds < 0 {
		http.Error(w, "time parameter must be a non-negative number of seconds", http.StatusBadRequest)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "png"
	}
	if format != "png" && format != "jpeg" {
		http.Error(w, "format must be png or jpeg", http.StatusBadRequest)
		return
	}

	resolved, ok := s.resolveSource(src)
	if !ok {
		http.Error(w, "source path is outside the allowed media root", http.StatusForbidden)
		return
	}

	if _, err := os.Stat(resolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "source file not found", http.StatusNotFound)
			return
		}
		s.writeError(w, fmt.Errorf("stat source: %w", err))
		return
	}

	data, err := s.service.Extract(r.Context(), resolved, seconds, format)
	if err != nil {
		s.logger.Error("frame extraction failed",
			logging.String("src", resolved),
			logging.Float64("time", seconds),
			logging.Error(err),
		)
		s.writeError(w, err)
		return
	}

	contentType := "image/png"
	if format == "jpeg" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	// Extracted frames are immutable per (src, time, format).
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

// resolveSource canonicalizes src and enforces the media root when one is
// configured. Without a media root only clean absolute paths are accepted.
func (s *Server) resolveSource(src string) (string, bool) {
	if s.mediaRoot != "" && s.mediaRoot != "." {
		candidate := src
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(s.mediaRoot, candidate)
		}
		candidate = filepath.Clean(candidate)
		if candidate != s.mediaRoot && !strings.HasPrefix(candidate, s.mediaRoot+string(filepath.Separator)) {
			return "", false
		}
		return candidate, true
	}
	if !filepath.IsAbs(src) {
		return "", false
	}
	clean := filepath.Clean(src)
	if clean != src {
		return "", false
	}
	return clean, true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
