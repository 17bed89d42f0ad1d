// ABOUTME: Request-recording middleware implementing the inbound analytics contract
// ABOUTME: Hands every request to the aggregator exactly once, after the response

package server

import (
	"net/http"
	"time"

	"github.com/taciturnaxolotl/cachet/internal/analytics"
)

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush forwards to the wrapped writer so streaming handlers keep working
// behind the recorder.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer for http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// recordRequests hands each completed request to the analytics aggregator.
// Recording happens after the response is produced and exactly once per
// request, regardless of outcome.
func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		s.analytics.RecordRequest(r.Context(), analytics.Event{
			Endpoint:       r.URL.Path,
			StatusCode:     status,
			UserAgent:      r.UserAgent(),
			ResponseTimeMs: time.Since(start).Milliseconds(),
		})
	})
}
