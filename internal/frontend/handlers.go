package frontend

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/telhawk-systems/formrelay/internal/logging"
	"github.com/telhawk-systems/formrelay/internal/metrics"
	"github.com/telhawk-systems/formrelay/internal/middleware"
	"github.com/telhawk-systems/formrelay/internal/ratelimit"
	"github.com/telhawk-systems/formrelay/internal/relay"
)

// Config holds the front-end HTTP settings.
type Config struct {
	Addr            string
	StaticRoot      string
	IndexPage       string
	MessagePage     string
	ErrorPage       string
	RedirectTo      string
	MaxBodyBytes    int64
	// HiddenPaths are files or directories under the static root that are
	// never served, such as the store file and the reject directory.
	HiddenPaths     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// Handler serves pages and relays submissions. It never reads or writes the
// submission store.
type Handler struct {
	cfg     Config
	hidden  []string
	relay   relay.Forwarder
	limiter ratelimit.RateLimiter
	logger  *logging.Logger
}

// NewHandler builds a Handler. A nil limiter disables rate limiting.
func NewHandler(cfg Config, fwd relay.Forwarder, limiter ratelimit.RateLimiter, logger *logging.Logger) *Handler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.StaticRoot == "" {
		cfg.StaticRoot = "."
	}
	if cfg.RedirectTo == "" {
		cfg.RedirectTo = "/message"
	}
	return &Handler{
		cfg:     cfg,
		hidden:  absPaths(cfg.HiddenPaths),
		relay:   fwd,
		limiter: limiter,
		logger:  logger,
	}
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.sendHTML(w, r, h.cfg.IndexPage, http.StatusOK)
}

func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	h.sendHTML(w, r, h.cfg.MessagePage, http.StatusOK)
}

// Static serves any other GET path as a file relative to the static root.
func (h *Handler) Static(w http.ResponseWriter, r *http.Request) {
	path, ok := h.resolveStatic(r.URL.Path)
	if !ok {
		h.logger.WarnContext(r.Context(), "rejected path outside static root", logging.Path(r.URL.Path))
		h.sendError(w, r, http.StatusNotFound)
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.sendError(w, r, http.StatusNotFound)
		return
	}

	body, err := os.ReadFile(path)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read static file", logging.Path(path), logging.Error(err))
		h.sendError(w, r, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType(path))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Submit reads exactly Content-Length bytes and relays them untouched to the
// collector, then redirects. The redirect does not depend on the relay
// outcome: delivery is fire-and-forget.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := middleware.ClientIP(r)

	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// fail open: a broken limiter must not block submissions
		h.logger.WarnContext(ctx, "rate limit check failed", logging.Error(err))
	} else if !allowed {
		h.logger.WarnContext(ctx, "submission rate limited", logging.Remote(clientIP))
		h.sendError(w, r, http.StatusTooManyRequests)
		return
	}

	// net/http reports a missing header as length 0 and chunked bodies as -1
	if r.ContentLength < 0 || (r.ContentLength == 0 && r.Header.Get("Content-Length") == "") {
		h.sendError(w, r, http.StatusLengthRequired)
		return
	}
	if r.ContentLength > h.cfg.MaxBodyBytes {
		h.sendError(w, r, http.StatusRequestEntityTooLarge)
		return
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		h.logger.WarnContext(ctx, "failed to read submission body",
			logging.Remote(clientIP),
			logging.Error(err),
		)
		h.sendError(w, r, http.StatusBadRequest)
		return
	}

	if len(body) == 0 {
		h.logger.DebugContext(ctx, "empty submission not relayed", logging.Remote(clientIP))
	} else if err := h.relay.Forward(ctx, body); err != nil {
		metrics.RelayDatagramsTotal.WithLabelValues("failed").Inc()
		h.logger.WarnContext(ctx, "failed to relay submission",
			logging.Remote(clientIP),
			logging.Bytes(len(body)),
			logging.Error(err),
		)
	} else {
		metrics.RelayDatagramsTotal.WithLabelValues("sent").Inc()
		metrics.RelayBytesTotal.Add(float64(len(body)))
	}

	w.Header().Set("Location", h.cfg.RedirectTo)
	w.WriteHeader(http.StatusFound)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
