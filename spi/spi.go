// Package spi is a polling driver for the AVR SPI peripheral: role
// initialisation, blocking byte exchange and a sentinel terminated string
// protocol on top of it.
package spi

import (
	"context"
	"errors"
	"fmt"

	"lautenbacher.net/avrhal/gpio"
)

var ErrTimeout = errors.New("spi: transfer did not complete")

// Transceiver exchanges exactly one byte in both directions per call.
type Transceiver interface {
	Exchange(out byte) byte
}

// ContextTransceiver is a Transceiver whose wait can be abandoned.
type ContextTransceiver interface {
	ExchangeContext(ctx context.Context, out byte) (byte, error)
}

// Bus drives one SPI peripheral through its registers. It holds no lock:
// exactly one execution context may use it, and it must never be used from
// an interrupt handler that can preempt another use of the same bus.
type Bus struct {
	regs Registers
	pins gpio.Driver
	role Role
}

func New(regs Registers, pins gpio.Driver) *Bus {
	return &Bus{regs: regs, pins: pins}
}

// Role returns the role programmed by the last Init.
func (b *Bus) Role() Role {
	return b.role
}

// Init sets the bus pin directions for the role and programs SPCR and SPSR
// from cfg. cfg is not validated. The only error source is the pin driver.
func (b *Bus) Init(role Role, cfg Config) error {
	var dirs [4]gpio.Direction // SS, MOSI, MISO, SCK
	if role == Master {
		dirs = [4]gpio.Direction{gpio.Output, gpio.Output, gpio.Input, gpio.Output}
	} else {
		dirs = [4]gpio.Direction{gpio.Input, gpio.Input, gpio.Output, gpio.Input}
	}
	for i, pin := range [4]gpio.Pin{SSPin, MOSIPin, MISOPin, SCKPin} {
		if err := b.pins.SetupPinDirection(PinsPort, pin, dirs[i]); err != nil {
			return fmt.Errorf("failed to set up %s pin %d: %w", role, pin, err)
		}
	}

	b.regs.SetControl(controlBits(role, cfg))

	status := b.regs.Status()
	if cfg.Rate.Mode() == DoubleSpeed {
		status |= 1 << SPI2X
	} else {
		status &^= 1 << SPI2X
	}
	b.regs.SetStatus(status)

	b.role = role
	return nil
}

// controlBits builds SPCR: SPE always, MSTR for the master, the record
// fields shifted into place and SPIE left clear.
func controlBits(role Role, cfg Config) uint8 {
	v := uint8(1<<SPE) |
		uint8(cfg.Order)<<DORD |
		uint8(cfg.Polarity)<<CPOL |
		uint8(cfg.Edge)<<CPHA |
		uint8(cfg.Rate&sprMask)<<SPR0
	if role == Master {
		v |= 1 << MSTR
	}
	return v
}

// Exchange writes out to SPDR, spins until SPIF is set and returns the byte
// shifted in. There is no timeout: a slave without a clocking master waits
// forever. SPSR must be read before SPDR, which is what clears SPIF.
func (b *Bus) Exchange(out byte) byte {
	b.regs.SetData(out)
	for b.regs.Status()&(1<<SPIF) == 0 {
	}
	return b.regs.Data()
}

// ExchangeContext is Exchange with a bounded wait. The register sequence is
// identical; the poll loop returns ErrTimeout once ctx is done. A timed out
// transfer is still loaded in SPDR.
func (b *Bus) ExchangeContext(ctx context.Context, out byte) (byte, error) {
	b.regs.SetData(out)
	for b.regs.Status()&(1<<SPIF) == 0 {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}
	}
	return b.regs.Data(), nil
}

// WithContext lets a plain Transceiver be used where a ContextTransceiver
// is needed. The context is only checked between bytes.
func WithContext(t Transceiver) ContextTransceiver {
	if ct, ok := t.(ContextTransceiver); ok {
		return ct
	}
	return contextAdapter{t}
}

type contextAdapter struct {
	t Transceiver
}

func (a contextAdapter) ExchangeContext(ctx context.Context, out byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return a.t.Exchange(out), nil
}
