// Package session runs the request level operations of the command line
// and the monitor on top of a bus: send one message, receive one, or both.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lautenbacher.net/avrhal/spi"
)

// MaxMessage bounds a received message.
const MaxMessage = 256

// Bulk is implemented by host masters that clock a whole buffer in one
// transaction, chip select held low throughout.
type Bulk interface {
	Tx(data []byte) ([]byte, error)
}

// Session binds a bus to the per message time limit.
type Session struct {
	bus     spi.ContextTransceiver
	timeout time.Duration
}

// New returns a session on bus. A zero timeout waits as long as the caller's
// context allows.
func New(bus spi.ContextTransceiver, timeout time.Duration) *Session {
	return &Session{bus: bus, timeout: timeout}
}

func (s *Session) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Send transmits msg followed by the sentinel. msg must not contain the
// sentinel or NUL. A Bulk bus sends it in one transaction.
func (s *Session) Send(ctx context.Context, msg []byte) error {
	for _, c := range msg {
		if c == spi.Sentinel || c == 0 {
			return fmt.Errorf("message contains %q", c)
		}
	}
	if b, ok := s.bus.(Bulk); ok {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", spi.ErrTimeout, err)
		}
		if _, err := b.Tx(spi.AppendSentinel(msg)); err != nil {
			return fmt.Errorf("bulk send of %d bytes: %w", len(msg)+1, err)
		}
		slog.Info("Sent message", "msg", string(msg), "bytes", len(msg)+1, "bulk", true)
		return nil
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := spi.SendStringContext(ctx, s.bus, spi.AppendSentinel(msg))
	if err != nil {
		return fmt.Errorf("sent %d of %d bytes: %w", n, len(msg)+1, err)
	}
	slog.Info("Sent message", "msg", string(msg), "bytes", n)
	return nil
}

// Receive reads one message up to the sentinel.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	buf := make([]byte, MaxMessage)
	n, err := spi.ReceiveStringContext(ctx, s.bus, buf)
	if err != nil {
		return buf[:n], fmt.Errorf("received %d bytes: %w", n, err)
	}
	slog.Info("Received message", "msg", string(buf[:n]), "bytes", n)
	return buf[:n], nil
}

// Echo sends msg and returns the answer, or, as slave, receives first and
// sends back what came in.
func (s *Session) Echo(ctx context.Context, role spi.Role, msg []byte) ([]byte, error) {
	if role == spi.Slave {
		got, err := s.Receive(ctx)
		if err != nil {
			return got, err
		}
		return got, s.Send(ctx, got)
	}
	if err := s.Send(ctx, msg); err != nil {
		return nil, err
	}
	return s.Receive(ctx)
}
