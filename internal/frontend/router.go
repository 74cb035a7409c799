package frontend

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/formrelay/internal/logging"
	"github.com/telhawk-systems/formrelay/internal/metrics"
	"github.com/telhawk-systems/formrelay/internal/middleware"
)

// NewRouter constructs a ServeMux with the front-end routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /message", h.Message)

	// Health and metrics
	mux.HandleFunc("GET /healthz", h.Health)
	if h.cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Everything else is a static file lookup
	mux.HandleFunc("GET /", h.Static)

	// Submissions are accepted on any path
	mux.HandleFunc("POST /", h.Submit)

	return middleware.RequestID(accessLog(h.logger, mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// accessLog records one log line and one counter increment per request.
func accessLog(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		logger.InfoContext(r.Context(), "request",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(rec.status),
			logging.Bytes(rec.bytes),
			logging.Duration(time.Since(start)),
			logging.Remote(middleware.ClientIP(r)),
		)
	})
}
