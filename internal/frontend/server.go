package frontend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/telhawk-systems/formrelay/internal/logging"
)

// Service runs the HTTP front-end until its context is cancelled.
type Service struct {
	cfg     Config
	handler http.Handler
	logger  *logging.Logger

	ready     chan struct{}
	readyOnce sync.Once
	mu        sync.Mutex
	addr      net.Addr
}

// NewService wraps handler (normally NewRouter's result) in a server bound
// to cfg.Addr.
func NewService(cfg Config, handler http.Handler, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

func (s *Service) Name() string {
	return "frontend"
}

// Ready is closed once the listener is bound.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run binds the listener and serves until ctx is cancelled, then drains
// in-flight requests for up to cfg.ShutdownTimeout.
func (s *Service) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("frontend listen on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("frontend listening", logging.Addr(ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("frontend serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx := context.WithoutCancel(ctx)
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return fmt.Errorf("frontend shutdown: %w", err)
	}

	s.logger.Info("frontend stopped")
	return nil
}
