package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/getbunnyd/bunnyd/pkg/httputil"
)

// shutdownGate answers 503 on work routes once a shutdown has begun.
// Liveness and metrics stay reachable so orchestrators can observe the drain.
func shutdownGate(next http.Handler, shuttingDown func() bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shuttingDown() && r.URL.Path != "/" && r.URL.Path != "/metrics" {
			httputil.WriteServiceUnavailable(w, codeShuttingDown, "proxy is shutting down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
