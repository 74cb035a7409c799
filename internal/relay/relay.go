// Package relay forwards raw form bodies to the collector as UDP datagrams.
//
// Delivery is at-most-once: there is no acknowledgement, no retry and no
// response channel. A datagram lost on the way, or dropped by a collector that
// is not running, is invisible to the sender.
package relay

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Forwarder is what the front-end needs from a relay.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte) error
}

// Sender opens a fresh UDP socket per payload, writes one datagram and closes it.
type Sender struct {
	target       string
	writeTimeout time.Duration
	dialer       net.Dialer
}

// NewSender returns a Sender for the collector at target (host:port).
func NewSender(target string, writeTimeout time.Duration) *Sender {
	return &Sender{target: target, writeTimeout: writeTimeout}
}

// Target returns the collector address.
func (s *Sender) Target() string {
	return s.target
}

// Forward sends payload as a single datagram. A nil error only means the
// datagram left this host; it says nothing about the collector storing it.
func (s *Sender) Forward(ctx context.Context, payload []byte) error {
	conn, err := s.dialer.DialContext(ctx, "udp", s.target)
	if err != nil {
		return fmt.Errorf("dial collector %s: %w", s.target, err)
	}
	defer conn.Close()

	if s.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	n, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("send datagram to %s: %w", s.target, err)
	}
	if n != len(payload) {
		return fmt.Errorf("short datagram write to %s: %d of %d bytes", s.target, n, len(payload))
	}
	return nil
}
