package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// recorder remembers what the wrapped handler sent.
type recorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(p)
	rec.size += int64(n)
	return n, err
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// WithAccessLog logs one line per request. 5xx responses log at error,
// 409 and 429 at warn so lost booking races and throttling stand out, and
// health probes at debug.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case isProbe(r.URL.Path):
				level = slog.LevelDebug
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status == http.StatusConflict, rec.status == http.StatusTooManyRequests:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"client", clientKey(r),
				"status", rec.status,
				"bytes", rec.size,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		})
	}
}
