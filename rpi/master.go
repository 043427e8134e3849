// Package rpi drives the AVR from a Raspberry Pi acting as SPI master,
// either through go-rpio's register access or through the periph.io spidev
// driver.
package rpi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/spi"
)

var ErrNotMaster = errors.New("rpi: the Raspberry Pi can only be bus master")

// txFunc runs one full duplex transaction, replacing buf with what was
// read.
type txFunc func(buf []byte) error

// master turns a host transaction function into a byte transceiver. The host
// controllers shift MSB first only, so LSB-first buses are served by
// reversing each byte on the way out and in.
type master struct {
	name  string
	mu    sync.Mutex
	tx    txFunc
	order spi.DataOrder
	buf   [1]byte
}

// Exchange sends one byte. A failed transaction is logged and reads as 0xFF,
// what an undriven MISO line gives.
func (m *master) Exchange(out byte) byte {
	in, err := m.exchange(out)
	if err != nil {
		slog.Error("spi transaction failed", "backend", m.name, "error", err)
		return spi.DefaultFill
	}
	return in
}

// ExchangeContext fails early when ctx is already done. A started host
// transaction always completes.
func (m *master) ExchangeContext(ctx context.Context, out byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", spi.ErrTimeout, err)
	}
	return m.exchange(out)
}

func (m *master) exchange(out byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf[0] = m.order.OnWire(out)
	if err := m.tx(m.buf[:]); err != nil {
		return 0, err
	}
	return m.order.OnWire(m.buf[0]), nil
}

// Tx sends data in one transaction with SS held low throughout and returns
// what came back.
func (m *master) Tx(data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	for i, b := range data {
		buf[i] = m.order.OnWire(b)
	}
	if err := m.tx(buf); err != nil {
		return nil, err
	}
	for i, b := range buf {
		buf[i] = m.order.OnWire(b)
	}
	return buf, nil
}

// Frequency is the SCK rate for the host: Hardware.SPIFrequency when set,
// otherwise the rate the AVR master would use at Hardware.FCPU.
func Frequency(hw config.HardwareConfig, rate spi.ClockRate) int {
	if hw.SPIFrequency > 0 {
		return hw.SPIFrequency
	}
	return rate.Hz(hw.FCPU)
}

// busSettings reads what a host master needs from the configuration.
func busSettings(conf *config.Config) (spi.Config, error) {
	role, err := conf.Bus.SPIRole()
	if err != nil {
		return spi.Config{}, err
	}
	if role != spi.Master {
		return spi.Config{}, ErrNotMaster
	}
	return conf.Bus.SPIConfig()
}
