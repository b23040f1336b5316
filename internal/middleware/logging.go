package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errHijackUnsupported = errors.New("middleware: response writer does not support hijacking")

// RequestLogger logs one line per request and puts a request-scoped zerolog
// logger into the context, retrievable with zerolog.Ctx. A request that is
// hijacked for a protocol upgrade is logged as 101 at the moment of the
// upgrade; its closing is logged at debug level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		logger := log.With().Str("request_id", chimw.GetReqID(r.Context())).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		hijacked := false
		ww := &upgradeWriter{WrapResponseWriter: chimw.NewWrapResponseWriter(w, r.ProtoMajor)}
		ww.onHijack = func() {
			hijacked = true
			logRequest(&logger, r, http.StatusSwitchingProtocols, 0, time.Since(start))
		}
		next.ServeHTTP(ww, r)

		if hijacked {
			logger.Debug().
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("upgraded connection closed")
			return
		}

		status := ww.Status()
		if status == 0 {
			// The handler wrote nothing.
			status = http.StatusOK
		}
		logRequest(&logger, r, status, ww.BytesWritten(), time.Since(start))
	})
}

func logRequest(logger *zerolog.Logger, r *http.Request, status, bytes int, elapsed time.Duration) {
	var event *zerolog.Event
	switch {
	case status >= 500:
		event = logger.Error()
	case status >= 400:
		event = logger.Warn()
	default:
		event = logger.Info()
	}

	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("bytes", bytes).
		Dur("duration", elapsed).
		Str("client_ip", r.RemoteAddr).
		Msg("HTTP request")
}

// upgradeWriter reports a successful Hijack to the request logger.
type upgradeWriter struct {
	chimw.WrapResponseWriter
	onHijack func()
}

func (w *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.WrapResponseWriter.Unwrap().(http.Hijacker)
	if !ok {
		return nil, nil, errHijackUnsupported
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		w.onHijack()
	}
	return conn, rw, err
}

func (w *upgradeWriter) Flush() {
	if f, ok := w.WrapResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
