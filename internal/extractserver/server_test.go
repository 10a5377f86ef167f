package extractserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"renderforge/internal/framecache"
	"renderforge/internal/services"
)

type fakeExtractor struct {
	fail bool
}

func (e *fakeExtractor) ExtractFrame(ctx context.Context, src string, seconds float64, format string) ([]byte, error) {
	if e.fail {
		return nil, services.Wrap(services.ErrExtraction, "extract", "decode", "decoder blew up", nil)
	}
	return []byte("frame-bytes"), nil
}

func newTestServer(t *testing.T, extractor framecache.Extractor) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	service := framecache.NewService(extractor, 1<<20, nil)
	srv := New("127.0.0.1:0", root, service, nil)
	return srv, root
}

func doRequest(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestExtractSuccess(t *testing.T) {
	srv, root := newTestServer(t, &fakeExtractor{})
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, "/extract?src=clip.mp4&time=2.5&format=png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=31536000, immutable" {
		t.Fatalf("unexpected cache header %q", got)
	}
	if rec.Body.String() != "frame-bytes" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestExtractValidatesParams(t *testing.T) {
	srv, root := newTestServer(t, &fakeExtractor{})
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []string{
		"/extract?time=1&format=png",             // missing src
		"/extract?src=clip.mp4&format=png",       // missing time
		"/extract?src=clip.mp4&time=abc",         // bad time
		"/extract?src=clip.mp4&time=-1",          // negative time
		"/extract?src=clip.mp4&time=1&format=gif", // bad format
	}
	for _, target := range cases {
		if rec := doRequest(t, srv, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})
	rec := doRequest(t, srv, "/extract?src=..%2F..%2Fetc%2Fpasswd&time=1&format=png")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestExtractMissingSource(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExtractor{})
	rec := doRequest(t, srv, "/extract?src=absent.mp4&time=1&format=png")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExtractFailureReturnsJSONError(t *testing.T) {
	srv, root := newTestServer(t, &fakeExtractor{fail: true})
	if err := os.WriteFile(filepath.Join(root, "clip.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, "/extract?src=clip.mp4&time=1&format=png")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if payload["error"] == "" {
		t.Fatal("expected error message in body")
	}
}
