package platform

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/multierr"

	"lautenbacher.net/avrhal/spi"
)

const maxMessage = 256

// responder is the program on the simulated peer MCU.
type responder struct {
	bus      *spi.Bus
	greeting []byte
	ready    func()
	pace     time.Duration
}

// done reports whether err only says that ctx ended.
func done(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, spi.ErrTimeout)
}

// runSlave loads the next queued byte before every transfer and collects
// what the master sends. The queue starts with the greeting; a complete
// message replaces whatever is left in it with the message itself. Fill
// bytes from the master count as idle clocks.
func (r *responder) runSlave(ctx context.Context) error {
	var queue deque.Deque[byte]
	for _, b := range spi.AppendSentinel(r.greeting) {
		queue.PushBack(b)
	}

	var msg []byte
	for {
		out := spi.DefaultFill
		if queue.Len() > 0 {
			out = queue.Front()
		}
		in, err := r.bus.ExchangeContext(ctx, out)
		if err != nil {
			if done(ctx, err) {
				return nil
			}
			return err
		}
		if queue.Len() > 0 {
			queue.PopFront()
		}

		switch {
		case in == spi.Sentinel:
			slog.Debug("Responder received message", "msg", string(msg))
			queue.Clear()
			for _, b := range spi.AppendSentinel(msg) {
				queue.PushBack(b)
			}
			msg = msg[:0]
			if r.ready != nil {
				r.ready()
			}
		case in == spi.DefaultFill:
		case len(msg) < maxMessage:
			msg = append(msg, in)
		}
	}
}

// runMaster sends the greeting and reads the answer, once per pace, until
// ctx ends. Answers that do not fit are reported when it returns.
func (r *responder) runMaster(ctx context.Context) error {
	var errs error
	buf := make([]byte, maxMessage)
	for {
		if _, err := spi.SendStringContext(ctx, r.bus, spi.AppendSentinel(r.greeting)); err != nil {
			if done(ctx, err) {
				return errs
			}
			return multierr.Append(errs, err)
		}
		n, err := spi.ReceiveStringContext(ctx, r.bus, buf)
		switch {
		case err == nil:
			slog.Debug("Responder received answer", "msg", string(buf[:n]))
		case done(ctx, err):
			return errs
		case errors.Is(err, spi.ErrOverflow):
			slog.Warn("Responder answer too long", "bytes", n)
			errs = multierr.Append(errs, err)
		default:
			return multierr.Append(errs, err)
		}

		select {
		case <-ctx.Done():
			return errs
		case <-time.After(r.pace):
		}
	}
}
