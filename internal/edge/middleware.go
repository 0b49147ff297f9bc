package edge

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/logging"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// RequestID assigns an X-Request-ID to every request, trusting an
// incoming header if present, and echoes it on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			r.Header.Set("X-Request-ID", requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

var accessLogRWPool = sync.Pool{
	New: func() any { return &accessLogWriter{} },
}

// AccessLog logs one structured line per request.
func AccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := accessLogRWPool.Get().(*accessLogWriter)
			lw.ResponseWriter = w
			lw.status = http.StatusOK
			lw.bytes = 0

			next.ServeHTTP(lw, r)

			logging.Info("request",
				zap.String("request_id", r.Header.Get("X-Request-ID")),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", lw.status),
				zap.Int64("bytes", lw.bytes),
				zap.String("cache", lw.Header().Get("X-Cache")),
				zap.Duration("duration", time.Since(start)),
			)

			lw.ResponseWriter = nil
			accessLogRWPool.Put(lw)
		})
	}
}

// accessLogWriter captures status and byte count for the access log.
type accessLogWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *accessLogWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *accessLogWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *accessLogWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
