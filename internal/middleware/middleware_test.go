package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/internal/middleware"
)

type stubSessions map[string]int64

func (s stubSessions) Validate(token string) (int64, bool) {
	id, ok := s[token]
	return id, ok
}

func newGatedRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequireSession(stubSessions{"good": 42}, "session_id"))
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.PrincipalID(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
	return r
}

func TestRequireSessionAcceptsValidCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "good"})
	rec := httptest.NewRecorder()

	newGatedRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42}`, rec.Body.String())
}

func TestRequireSessionRejects(t *testing.T) {
	cases := map[string]*http.Cookie{
		"missing cookie": nil,
		"empty cookie":   {Name: "session_id", Value: ""},
		"unknown token":  {Name: "session_id", Value: "stale"},
		"wrong name":     {Name: "sid", Value: "good"},
	}

	for name, cookie := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if cookie != nil {
				req.AddCookie(cookie)
			}
			rec := httptest.NewRecorder()

			newGatedRouter().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)
		})
	}
}

func TestPrincipalIDMissing(t *testing.T) {
	_, ok := middleware.PrincipalID(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger)
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside handler")
		http.NotFound(w, r)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))

	assert.Equal(t, "inside handler", inner["message"])
	assert.NotEmpty(t, inner["request_id"])
	assert.Equal(t, inner["request_id"], access["request_id"])

	assert.Equal(t, "warn", access["level"])
	assert.Equal(t, "GET", access["method"])
	assert.Equal(t, "/missing", access["path"])
	assert.EqualValues(t, 404, access["status"])
}

// syncBuffer lets the server goroutine log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil {
			out = append(out, entry)
		}
	}
	return out
}

func TestRequestLoggerRecordsUpgrade(t *testing.T) {
	buf := &syncBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = prev })

	upgrader := websocket.Upgrader{}
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)

	// The access line is written while the connection is still open.
	require.Eventually(t, func() bool {
		for _, entry := range buf.lines() {
			if entry["message"] == "HTTP request" {
				return assert.EqualValues(t, 101, entry["status"]) &&
					assert.Equal(t, "info", entry["level"])
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		for _, entry := range buf.lines() {
			if entry["message"] == "upgraded connection closed" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	access := 0
	for _, entry := range buf.lines() {
		if entry["message"] == "HTTP request" {
			access++
		}
	}
	assert.Equal(t, 1, access)
}
