// Package buspirate uses a Bus Pirate in binary SPI mode as bus master, so
// the AVR can be driven from any machine with a USB port.
package buspirate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"
	"go.uber.org/multierr"

	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/spi"
)

// Binary mode commands.
const (
	cmdReset      = 0x00
	cmdSPIMode    = 0x01
	cmdCSLow      = 0x02
	cmdCSHigh     = 0x03
	cmdExit       = 0x0F
	cmdBulk       = 0x10 // low nibble: byte count - 1
	cmdPeripheral = 0x40 // 0100 power pullups aux cs
	cmdSpeed      = 0x60 // low 3 bits: speed index
	cmdConfig     = 0x80 // 1000 hiz/3v3 ckp cke smp

	ack = 0x01

	maxBulk    = 16
	resetTries = 20
)

var (
	ErrNoResponse = errors.New("buspirate: device did not answer")
	ErrNotMaster  = errors.New("buspirate: the Bus Pirate can only be bus master")
)

// speeds are the SCK rates selectable with cmdSpeed, by index.
var speeds = [8]int{30_000, 125_000, 250_000, 1_000_000, 2_000_000, 2_600_000, 4_000_000, 8_000_000}

// speedIndex picks the fastest rate not above hz. Anything slower than the
// slowest rate gets the slowest.
func speedIndex(hz int) int {
	idx := 0
	for i, s := range speeds {
		if s <= hz {
			idx = i
		}
	}
	return idx
}

// configByte builds the SPI configuration command. Output is push-pull at
// 3.3V and input is sampled in the middle of the bit.
func configByte(cfg spi.Config) byte {
	b := byte(cmdConfig | 0x08)
	if cfg.Polarity == spi.IdleHigh {
		b |= 0x04
	}
	// CKE set means data changes on the active to idle edge, so it is
	// sampled on the leading one.
	if cfg.Edge == spi.Leading {
		b |= 0x02
	}
	return b
}

// Master is a Bus Pirate in SPI mode with chip select held low while open.
type Master struct {
	conf    *config.Config
	mu      sync.Mutex
	port    io.ReadWriteCloser
	order   spi.DataOrder
	timeout time.Duration
}

func NewMaster(conf *config.Config) *Master {
	return &Master{conf: conf, timeout: time.Second}
}

// Open opens the serial port and brings the Bus Pirate into SPI mode.
func (m *Master) Open() error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        m.conf.Hardware.SerialPort,
		Baud:        m.conf.Hardware.SerialBaud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", m.conf.Hardware.SerialPort, err)
	}
	if err := m.start(port); err != nil {
		port.Close()
		return err
	}
	return nil
}

// start runs the mode handshake on an open port.
func (m *Master) start(port io.ReadWriteCloser) error {
	role, err := m.conf.Bus.SPIRole()
	if err != nil {
		return err
	}
	if role != spi.Master {
		return ErrNotMaster
	}
	cfg, err := m.conf.Bus.SPIConfig()
	if err != nil {
		return err
	}

	m.port = port
	m.order = cfg.Order

	if err := m.enterBinary(); err != nil {
		return err
	}
	if err := m.expect([]byte{cmdSPIMode}, []byte("SPI1")); err != nil {
		return fmt.Errorf("failed to enter spi mode: %w", err)
	}

	hz := m.conf.Hardware.SPIFrequency
	if hz <= 0 {
		hz = cfg.Rate.Hz(m.conf.Hardware.FCPU)
	}
	idx := speedIndex(hz)
	for _, cmd := range []byte{
		cmdSpeed | byte(idx),
		configByte(cfg),
		cmdPeripheral | 0x08 | 0x01, // power on, CS high
		cmdCSLow,
	} {
		if err := m.expect([]byte{cmd}, []byte{ack}); err != nil {
			return fmt.Errorf("command %#02x: %w", cmd, err)
		}
	}
	slog.Info("SPI ready", "backend", "buspirate", "port", m.conf.Hardware.SerialPort, "hz", speeds[idx], "mode", cfg.Mode(), "order", cfg.Order)
	return nil
}

// enterBinary sends resets until the device reports bitbang mode.
func (m *Master) enterBinary() error {
	for i := 0; i < resetTries; i++ {
		if err := m.expect([]byte{cmdReset}, []byte("BBIO1")); err == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to enter binary mode: %w", ErrNoResponse)
}

// expect writes cmd and reads len(want) bytes, which must equal want.
func (m *Master) expect(cmd, want []byte) error {
	if _, err := m.port.Write(cmd); err != nil {
		return err
	}
	got, err := m.read(len(want))
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: got %q, want %q", ErrNoResponse, got, want)
	}
	return nil
}

// read collects n bytes. The serial port returns early on its read timeout,
// so it is polled until m.timeout has passed.
func (m *Master) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(m.timeout)
	for got < n {
		k, err := m.port.Read(buf[got:])
		got += k
		if err != nil && err != io.EOF {
			return nil, err
		}
		if k == 0 {
			if time.Now().After(deadline) {
				return nil, ErrNoResponse
			}
			time.Sleep(time.Millisecond)
		}
	}
	return buf, nil
}

// transfer clocks up to maxBulk bytes in one bulk command.
func (m *Master) transfer(data []byte) ([]byte, error) {
	cmd := make([]byte, 0, len(data)+1)
	cmd = append(cmd, cmdBulk|byte(len(data)-1))
	for _, b := range data {
		cmd = append(cmd, m.order.OnWire(b))
	}
	if _, err := m.port.Write(cmd); err != nil {
		return nil, err
	}
	reply, err := m.read(len(data) + 1)
	if err != nil {
		return nil, err
	}
	if reply[0] != ack {
		return nil, fmt.Errorf("%w: bulk transfer refused with %#02x", ErrNoResponse, reply[0])
	}
	out := reply[1:]
	for i, b := range out {
		out[i] = m.order.OnWire(b)
	}
	return out, nil
}

// Exchange sends one byte. Failures are logged and read as 0xFF.
func (m *Master) Exchange(out byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := m.transfer([]byte{out})
	if err != nil {
		slog.Error("spi transaction failed", "backend", "buspirate", "error", err)
		return spi.DefaultFill
	}
	return in[0]
}

func (m *Master) ExchangeContext(ctx context.Context, out byte) (byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", spi.ErrTimeout, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	in, err := m.transfer([]byte{out})
	if err != nil {
		return 0, err
	}
	return in[0], nil
}

// Tx sends data in chunks of at most 16 bytes, CS staying low.
func (m *Master) Tx(data []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	read := make([]byte, 0, len(data))
	for len(data) > 0 {
		n := min(len(data), maxBulk)
		in, err := m.transfer(data[:n])
		if err != nil {
			return read, err
		}
		read = append(read, in...)
		data = data[n:]
	}
	return read, nil
}

// Close raises CS, returns the Bus Pirate to its terminal and closes the
// port.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port == nil {
		return nil
	}
	var errs []error
	if err := m.expect([]byte{cmdCSHigh}, []byte{ack}); err != nil {
		errs = append(errs, fmt.Errorf("failed to release CS: %w", err))
	}
	if _, err := m.port.Write([]byte{cmdReset, cmdExit}); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, m.port.Close())
	m.port = nil
	return multierr.Combine(errs...)
}
