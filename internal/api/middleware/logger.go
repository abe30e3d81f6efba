package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// statusRecorder captures the status and body size written by a handler so
// the logger and span middleware can report them after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Logger emits one structured event per admin API request. Severity follows
// the response status; the event carries the chi request id and the acting
// user (X-Actor) so request logs can be joined against audit rows.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := record(w)

		next.ServeHTTP(sr, r)

		event := log.Info()
		switch {
		case sr.status >= 500:
			event = log.Error()
		case sr.status >= 400:
			event = log.Warn()
		}

		if actor := r.Header.Get("X-Actor"); actor != "" {
			event = event.Str("actor", actor)
		}

		event.
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Int("bytes", sr.bytes).
			Dur("elapsed", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("admin api request")
	})
}
