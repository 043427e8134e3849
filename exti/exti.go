// Package exti configures the external interrupt lines INT0, INT1 and INT2
// and dispatches them to handlers supplied by the application.
package exti

import (
	"errors"
	"fmt"
	"sync"

	"lautenbacher.net/avrhal/gpio"
)

// Line is one of the external interrupt sources.
type Line uint8

const (
	INT0 Line = iota
	INT1
	INT2
)

const NumLines = 3

// Sense selects what on the pin raises the interrupt. The values are the
// ISCn1:ISCn0 bit patterns.
type Sense uint8

const (
	LowLevel Sense = iota
	AnyChange
	FallingEdge
	RisingEdge
)

// Register names the registers the controller touches.
type Register uint8

const (
	GICR Register = iota
	GIFR
	MCUCR
	MCUCSR
	SREG
)

const NumRegisters = 5

// Registers gives access to the interrupt control registers. Writing a one
// to a GIFR bit clears that flag, as on the chip.
type Registers interface {
	Get(r Register) uint8
	Set(r Register, v uint8)
}

// IBit is the global interrupt enable bit in SREG.
const IBit = 7

// MCUCR / MCUCSR sense bit positions.
const (
	ISC00 = 0
	ISC10 = 2
	ISC2  = 6
)

var (
	ErrUnsupportedSense = errors.New("exti: sense not supported on line")
	ErrInvalidLine      = errors.New("exti: invalid line")
)

type lineInfo struct {
	bit  uint8 // same position in GICR and GIFR
	port gpio.Port
	pin  gpio.Pin
	name string
}

var lines = [NumLines]lineInfo{
	INT0: {bit: 6, port: gpio.PortD, pin: 2, name: "INT0"},
	INT1: {bit: 7, port: gpio.PortD, pin: 3, name: "INT1"},
	INT2: {bit: 5, port: gpio.PortB, pin: 2, name: "INT2"},
}

func (l Line) valid() bool {
	return l < NumLines
}

func (l Line) String() string {
	if !l.valid() {
		return fmt.Sprintf("Line(%d)", uint8(l))
	}
	return lines[l].name
}

// Mask returns the line's bit in GICR and GIFR.
func (l Line) Mask() uint8 {
	if !l.valid() {
		return 0
	}
	return 1 << lines[l].bit
}

// Pin returns the port pin the line is wired to, or PortA pin 0 for an
// invalid line.
func (l Line) Pin() (gpio.Port, gpio.Pin) {
	if !l.valid() {
		return gpio.PortA, 0
	}
	return lines[l].port, lines[l].pin
}

func (s Sense) String() string {
	switch s {
	case LowLevel:
		return "low-level"
	case AnyChange:
		return "any-change"
	case FallingEdge:
		return "falling"
	case RisingEdge:
		return "rising"
	default:
		return fmt.Sprintf("Sense(%d)", uint8(s))
	}
}

// Handler is the application's interrupt routine. It runs in interrupt
// context and must not use the SPI bus.
type Handler func()

// Controller owns the interrupt registers. Handlers default to empty.
type Controller struct {
	regs     Registers
	pins     gpio.Driver
	mu       sync.Mutex
	handlers [NumLines]Handler
}

func New(regs Registers, pins gpio.Driver) *Controller {
	return &Controller{regs: regs, pins: pins}
}

// Enable sets the line's enable bit in GICR. Enabling twice is harmless.
// Pin direction and sense are left as they are; see Configure.
func (c *Controller) Enable(line Line) error {
	if !line.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	c.regs.Set(GICR, c.regs.Get(GICR)|line.Mask())
	return nil
}

func (c *Controller) Disable(line Line) error {
	if !line.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	c.regs.Set(GICR, c.regs.Get(GICR)&^line.Mask())
	return nil
}

func (c *Controller) Enabled(line Line) bool {
	return line.valid() && c.regs.Get(GICR)&line.Mask() != 0
}

// Configure makes the line's pin an input, switches its pull-up and selects
// the sense. INT2 is edge triggered only.
func (c *Controller) Configure(line Line, sense Sense, pullUp bool) error {
	if !line.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	if sense > RisingEdge || (line == INT2 && sense != FallingEdge && sense != RisingEdge) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedSense, sense, line)
	}

	port, pin := line.Pin()
	if err := c.pins.SetupPinDirection(port, pin, gpio.Input); err != nil {
		return fmt.Errorf("failed to set up %s pin: %w", line, err)
	}
	if err := c.pins.EnablePullUp(port, pin, pullUp); err != nil {
		return fmt.Errorf("failed to set %s pull-up: %w", line, err)
	}

	switch line {
	case INT0, INT1:
		shift := uint8(ISC00)
		if line == INT1 {
			shift = ISC10
		}
		v := c.regs.Get(MCUCR) &^ (0x03 << shift)
		c.regs.Set(MCUCR, v|uint8(sense)<<shift)
	case INT2:
		v := c.regs.Get(MCUCSR) &^ (1 << ISC2)
		if sense == RisingEdge {
			v |= 1 << ISC2
		}
		c.regs.Set(MCUCSR, v)
	}
	return nil
}

// Sense reads back the configured sense of a line.
func (c *Controller) Sense(line Line) Sense {
	switch line {
	case INT0:
		return Sense(c.regs.Get(MCUCR) >> ISC00 & 0x03)
	case INT1:
		return Sense(c.regs.Get(MCUCR) >> ISC10 & 0x03)
	case INT2:
		if c.regs.Get(MCUCSR)&(1<<ISC2) != 0 {
			return RisingEdge
		}
		return FallingEdge
	}
	return LowLevel
}

// EnableGlobal sets the I bit in SREG.
func (c *Controller) EnableGlobal() {
	c.regs.Set(SREG, c.regs.Get(SREG)|1<<IBit)
}

// DisableGlobal clears the I bit in SREG.
func (c *Controller) DisableGlobal() {
	c.regs.Set(SREG, c.regs.Get(SREG)&^(1<<IBit))
}

func (c *Controller) GlobalEnabled() bool {
	return c.regs.Get(SREG)&(1<<IBit) != 0
}

// Pending reports the line's flag in GIFR.
func (c *Controller) Pending(line Line) bool {
	return line.valid() && c.regs.Get(GIFR)&line.Mask() != 0
}

// Clear drops a pending flag by writing a one to it.
func (c *Controller) Clear(line Line) {
	c.regs.Set(GIFR, line.Mask())
}

// Handle installs the routine run for line. nil restores the empty one.
func (c *Controller) Handle(line Line, h Handler) {
	if !line.valid() {
		return
	}
	c.mu.Lock()
	c.handlers[line] = h
	c.mu.Unlock()
}

// Dispatch runs the handler of line. It is called from the interrupt
// vector, after the hardware has decided to take the interrupt.
func (c *Controller) Dispatch(line Line) {
	if !line.valid() {
		return
	}
	c.mu.Lock()
	h := c.handlers[line]
	c.mu.Unlock()
	if h != nil {
		h()
	}
}
