package gpio

import (
	"errors"
	"fmt"
)

// Port identifies one of the 8-bit I/O ports of the MCU.
type Port uint8

const (
	PortA Port = iota
	PortB
	PortC
	PortD
)

// NumPorts is the number of I/O ports, PinsPerPort the width of each.
const (
	NumPorts    = 4
	PinsPerPort = 8
)

// Pin is the bit position of a pin inside its port.
type Pin uint8

// Direction of a pin, as programmed into DDRx.
type Direction uint8

const (
	Input Direction = iota
	Output
)

var ErrInvalidPin = errors.New("gpio: invalid port or pin")

func (p Port) String() string {
	if p >= NumPorts {
		return fmt.Sprintf("PORT?%d", uint8(p))
	}
	return "PORT" + string(rune('A'+p))
}

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Driver is the pin abstraction the peripheral drivers are written against.
// Implementations are the AVR port registers, the software Model and the
// host backends.
type Driver interface {
	// SetupPinDirection programs the pin as input or output.
	SetupPinDirection(port Port, pin Pin, dir Direction) error

	// WritePin drives an output pin high (true) or low (false). On an input
	// pin it switches the internal pull-up, as the AVR PORTx register does.
	WritePin(port Port, pin Pin, high bool) error

	// ReadPin returns the level present on the pin.
	ReadPin(port Port, pin Pin) (bool, error)

	// EnablePullUp switches the internal pull-up of an input pin.
	EnablePullUp(port Port, pin Pin, on bool) error
}

func check(port Port, pin Pin) error {
	if port >= NumPorts || pin >= PinsPerPort {
		return fmt.Errorf("%w: %s pin %d", ErrInvalidPin, port, pin)
	}
	return nil
}
