// Package lifecycle runs the front-end and collector side by side and stops
// them together.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/formrelay/internal/logging"
)

// ErrShutdownTimeout is returned when services outlive the grace period.
var ErrShutdownTimeout = errors.New("services did not stop within the grace period")

// Service is a long-running unit. Run must return promptly once ctx is
// cancelled, after releasing its listener. A nil return means a clean stop.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Coordinator owns the shutdown signal shared by its services.
type Coordinator struct {
	gracePeriod time.Duration
	logger      *logging.Logger
}

// NewCoordinator returns a Coordinator that waits up to gracePeriod for
// services to return after shutdown starts.
func NewCoordinator(gracePeriod time.Duration, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{gracePeriod: gracePeriod, logger: logger}
}

// Run starts every service on its own goroutine and blocks until they have
// all returned. Cancelling ctx (typically on SIGINT/SIGTERM) starts shutdown.
// A service failing also shuts the others down; its error is returned.
// When the grace period runs out, Run returns ErrShutdownTimeout and leaves
// the stragglers running.
func (c *Coordinator) Run(ctx context.Context, services ...Service) error {
	if len(services) == 0 {
		return errors.New("no services to run")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			c.logger.Info("service starting", logging.Service(svc.Name()))
			if err := svc.Run(gctx); err != nil {
				c.logger.Error("service failed", logging.Service(svc.Name()), logging.Error(err))
				return fmt.Errorf("%s: %w", svc.Name(), err)
			}
			c.logger.Info("service stopped", logging.Service(svc.Name()))
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return c.finish(err)
	case <-gctx.Done():
	}

	c.logger.Info("shutdown started", "grace_period", c.gracePeriod.String())

	timer := time.NewTimer(c.gracePeriod)
	defer timer.Stop()

	select {
	case err := <-done:
		return c.finish(err)
	case <-timer.C:
		c.logger.Error("shutdown grace period expired")
		return ErrShutdownTimeout
	}
}

func (c *Coordinator) finish(err error) error {
	if err != nil {
		return err
	}
	c.logger.Info("all services stopped")
	return nil
}
