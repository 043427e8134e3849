//go:build tinygo && avr

package exti

import (
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"lautenbacher.net/avrhal/gpio"
)

// ATmega32 data space addresses, indexed by Register.
var addrs = [NumRegisters]uintptr{
	GICR:   0x5B,
	GIFR:   0x5A,
	MCUCR:  0x55,
	MCUCSR: 0x54,
	SREG:   0x5F,
}

// Hardware is the chip's own interrupt register set.
type Hardware struct{}

func (Hardware) Get(r Register) uint8 {
	return (*volatile.Register8)(unsafe.Pointer(addrs[r])).Get()
}

func (Hardware) Set(r Register, v uint8) {
	(*volatile.Register8)(unsafe.Pointer(addrs[r])).Set(v)
}

// Default receives the vectors. NewHardware sets it.
var Default *Controller

// NewHardware returns the controller for the chip and routes the INT0-INT2
// vectors to it.
func NewHardware(pins gpio.Driver) *Controller {
	Default = New(Hardware{}, pins)
	return Default
}

func dispatch(line Line) {
	if Default != nil {
		Default.Dispatch(line)
	}
}

// Vector numbers 1-3 are INT0, INT1 and INT2 on the ATmega32. The
// handlers are bound at compile time; GICR and SREG gate them at run time.
var (
	_ = interrupt.New(1, func(interrupt.Interrupt) { dispatch(INT0) })
	_ = interrupt.New(2, func(interrupt.Interrupt) { dispatch(INT1) })
	_ = interrupt.New(3, func(interrupt.Interrupt) { dispatch(INT2) })
)
