package spi

import (
	"context"
	"errors"
)

const (
	// Sentinel ends a sequence on the receive side. It can not be part of
	// the payload.
	Sentinel byte = '#'

	// DefaultFill is clocked out when a byte is only wanted for receiving.
	DefaultFill byte = 0xFF
)

var ErrOverflow = errors.New("spi: receive buffer full before sentinel")

// AppendSentinel returns s followed by the sentinel. SendString does not
// send one; a sender talking to ReceiveString has to add it itself.
func AppendSentinel(s []byte) []byte {
	out := make([]byte, len(s), len(s)+1)
	copy(out, s)
	return append(out, Sentinel)
}

// payload cuts s at its first NUL, the end of a C style string.
func payload(s []byte) []byte {
	for i, c := range s {
		if c == 0 {
			return s[:i]
		}
	}
	return s
}

// SendString exchanges every byte of s before the first NUL and throws the
// received bytes away. The NUL and anything after it are not sent, and no
// sentinel is added. It returns the number of bytes sent.
func SendString(t Transceiver, s []byte) int {
	p := payload(s)
	for _, c := range p {
		t.Exchange(c)
	}
	return len(p)
}

// ReceiveString clocks DefaultFill until the sentinel comes back and returns
// what arrived before it. It blocks until then.
func ReceiveString(t Transceiver) []byte {
	var out []byte
	for {
		c := t.Exchange(DefaultFill)
		if c == Sentinel {
			return out
		}
		out = append(out, c)
	}
}

// ReceiveInto is ReceiveString into a caller buffer. The sentinel's
// position is overwritten with NUL when it still fits in buf. If buf fills
// up first it returns len(buf) and ErrOverflow; the sentinel has then not
// been consumed.
func ReceiveInto(t Transceiver, buf []byte) (int, error) {
	for n := 0; n < len(buf); n++ {
		buf[n] = t.Exchange(DefaultFill)
		if buf[n] == Sentinel {
			buf[n] = 0
			return n, nil
		}
	}
	return len(buf), ErrOverflow
}

// SendStringContext is SendString with a bound on every byte's wait. On
// error it returns how many bytes went out completely.
func SendStringContext(ctx context.Context, t ContextTransceiver, s []byte) (int, error) {
	p := payload(s)
	for i, c := range p {
		if _, err := t.ExchangeContext(ctx, c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// ReceiveStringContext is ReceiveInto with a bound on every byte's wait.
// A timeout returns the bytes received so far together with the error.
func ReceiveStringContext(ctx context.Context, t ContextTransceiver, buf []byte) (int, error) {
	for n := 0; n < len(buf); n++ {
		c, err := t.ExchangeContext(ctx, DefaultFill)
		if err != nil {
			return n, err
		}
		if c == Sentinel {
			buf[n] = 0
			return n, nil
		}
		buf[n] = c
	}
	return len(buf), ErrOverflow
}
