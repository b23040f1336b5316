package static_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-chat/backend/internal/handler/static"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>chat</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assert"), 0o755); err != nil {
		t.Fatalf("mkdir assert: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assert", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	r := chi.NewRouter()
	static.New(dir).RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func TestServesIndex(t *testing.T) {
	resp := get(setupRouter(t), "/")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "chat") {
		t.Fatalf("expected index.html body, got %q", resp.Body.String())
	}
}

func TestUnknownPathFallsBackToIndex(t *testing.T) {
	resp := get(setupRouter(t), "/rooms/abc")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "chat") {
		t.Fatalf("expected index.html body, got %q", resp.Body.String())
	}
}

func TestServesAssets(t *testing.T) {
	r := setupRouter(t)

	resp := get(r, "/assert/app.js")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "console.log(1)" {
		t.Fatalf("unexpected asset body %q", resp.Body.String())
	}

	if resp := get(r, "/assert/missing.js"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
