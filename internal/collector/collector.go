// Package collector receives relayed form bodies over UDP and is the only
// writer of the submission store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/telhawk-systems/formrelay/internal/dlq"
	"github.com/telhawk-systems/formrelay/internal/logging"
	"github.com/telhawk-systems/formrelay/internal/metrics"
	"github.com/telhawk-systems/formrelay/internal/models"
	"github.com/telhawk-systems/formrelay/internal/store"
)

// Config holds the collector listener settings.
type Config struct {
	Addr             string
	MaxDatagramBytes int
}

// readRetryDelay paces the loop when reads keep failing.
const readRetryDelay = 50 * time.Millisecond

// Service listens for datagrams and appends each decoded submission to the
// store. Datagrams are handled one at a time in arrival order.
type Service struct {
	cfg     Config
	store   store.Store
	rejects *dlq.Queue
	logger  *logging.Logger
	now     func() time.Time
	listen  func(ctx context.Context, addr string) (net.PacketConn, error)

	ready     chan struct{}
	readyOnce sync.Once
	mu        sync.Mutex
	addr      net.Addr
}

// Option customises a Service.
type Option func(*Service)

// WithRejectQueue stores malformed datagrams in q.
func WithRejectQueue(q *dlq.Queue) Option {
	return func(s *Service) { s.rejects = q }
}

// WithClock overrides the wall clock used for store keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a collector service.
func New(cfg Config, st store.Store, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxDatagramBytes <= 0 {
		cfg.MaxDatagramBytes = models.MaxDatagramBytes
	}

	s := &Service{
		cfg:    cfg,
		store:  st,
		logger: logger.With(logging.Service("collector")),
		now:    time.Now,
		listen: listenUDP,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string {
	return "collector"
}

// Ready is closed once the listener is bound.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Ready.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run checks the store, binds the listener and processes datagrams until ctx
// is cancelled. It returns an error only when the store is unusable at
// startup or the listener cannot be bound. Read errors are logged and the
// loop carries on.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.store.Load(ctx); err != nil {
		return fmt.Errorf("collector store check: %w", err)
	}

	conn, err := s.listen(ctx, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("collector listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.addr = conn.LocalAddr()
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.logger.Info("collector listening", logging.Addr(conn.LocalAddr().String()))

	// Closing the socket is what interrupts the blocking read on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		if stop() {
			conn.Close()
		}
	}()

	buf := make([]byte, s.cfg.MaxDatagramBytes)
	for {
		n, remote, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("collector stopped")
				return nil
			}
			// A failed read loses at most one datagram; keep listening.
			metrics.CollectorDatagramsTotal.WithLabelValues(metrics.OutcomeReadError).Inc()
			s.logger.Warn("collector read failed", logging.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(readRetryDelay):
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		// A received datagram is always processed to completion.
		s.Handle(context.WithoutCancel(ctx), payload, remoteString(remote))
	}
}

// Handle decodes and stores one payload. Failures are logged and counted;
// they never stop the collector.
func (s *Service) Handle(ctx context.Context, payload []byte, remote string) {
	record, err := Decode(payload)
	if err != nil {
		metrics.CollectorDatagramsTotal.WithLabelValues(metrics.OutcomeMalformed).Inc()
		s.logger.Warn("dropping malformed datagram",
			logging.Remote(remote),
			logging.Bytes(len(payload)),
			logging.Error(err),
		)
		if qerr := s.rejects.Write(ctx, payload, remote, err); qerr != nil {
			s.logger.Error("failed to queue rejected datagram", logging.Error(qerr))
		}
		return
	}

	key := models.TimestampKey(s.now())
	start := time.Now()
	count, err := store.Append(ctx, s.store, key, record.Entry())
	metrics.StoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CollectorDatagramsTotal.WithLabelValues(metrics.OutcomeStoreError).Inc()
		s.logger.Error("failed to store submission, update dropped",
			logging.Remote(remote),
			logging.EntryKey(key),
			logging.Error(err),
		)
		return
	}

	metrics.CollectorDatagramsTotal.WithLabelValues(metrics.OutcomeStored).Inc()
	metrics.StoreEntries.Set(float64(count))
	s.logger.Debug("stored submission",
		logging.Remote(remote),
		logging.EntryKey(key),
		logging.Fields(len(record)),
	)
}

func listenUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp", addr)
}

func remoteString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
