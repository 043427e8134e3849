//go:build tinygo && avr

package gpio

import (
	"runtime/volatile"
	"unsafe"
)

// ATmega32 data space addresses, indexed by Port.
var (
	pinRegs  = [NumPorts]uintptr{0x39, 0x36, 0x33, 0x30}
	ddrRegs  = [NumPorts]uintptr{0x3A, 0x37, 0x34, 0x31}
	portRegs = [NumPorts]uintptr{0x3B, 0x38, 0x35, 0x32}
)

func reg(addr uintptr) *volatile.Register8 {
	return (*volatile.Register8)(unsafe.Pointer(addr))
}

// Hardware drives the MCU's own I/O ports.
type Hardware struct{}

func (Hardware) SetupPinDirection(port Port, pin Pin, dir Direction) error {
	if err := check(port, pin); err != nil {
		return err
	}
	if dir == Output {
		reg(ddrRegs[port]).SetBits(1 << pin)
	} else {
		reg(ddrRegs[port]).ClearBits(1 << pin)
	}
	return nil
}

func (Hardware) WritePin(port Port, pin Pin, high bool) error {
	if err := check(port, pin); err != nil {
		return err
	}
	if high {
		reg(portRegs[port]).SetBits(1 << pin)
	} else {
		reg(portRegs[port]).ClearBits(1 << pin)
	}
	return nil
}

func (h Hardware) EnablePullUp(port Port, pin Pin, on bool) error {
	return h.WritePin(port, pin, on)
}

func (Hardware) ReadPin(port Port, pin Pin) (bool, error) {
	if err := check(port, pin); err != nil {
		return false, err
	}
	return reg(pinRegs[port]).HasBits(1 << pin), nil
}
