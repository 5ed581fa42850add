package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsync/vitalsync/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// requestLogger tags every request with an ID, propagates it through
// the context, and writes one access-log line when the handler returns.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(logging.WithRequestID(r.Context(), requestID)))

		s.accessLogEvent(r.URL.Path, rec.statusCode).
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("http request completed")
	})
}

func (s *Server) accessLogEvent(path string, statusCode int) *zerolog.Event {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return s.log.Error()
	case statusCode >= http.StatusBadRequest:
		return s.log.Warn()
	case path == "/healthz":
		return s.log.Debug()
	default:
		return s.log.Info()
	}
}
