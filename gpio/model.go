package gpio

import "sync"

// Model is a software copy of the DDRx, PORTx and PINx registers of all
// ports. External levels on input pins are set with Drive; a floating input
// with its pull-up on reads high.
type Model struct {
	mu       sync.Mutex
	ddr      [NumPorts]uint8
	port     [NumPorts]uint8
	external [NumPorts]uint8
	driven   [NumPorts]uint8
}

func NewModel() *Model {
	return &Model{}
}

func (m *Model) SetupPinDirection(port Port, pin Pin, dir Direction) error {
	if err := check(port, pin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if dir == Output {
		m.ddr[port] |= 1 << pin
	} else {
		m.ddr[port] &^= 1 << pin
	}
	return nil
}

func (m *Model) WritePin(port Port, pin Pin, high bool) error {
	if err := check(port, pin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if high {
		m.port[port] |= 1 << pin
	} else {
		m.port[port] &^= 1 << pin
	}
	return nil
}

func (m *Model) EnablePullUp(port Port, pin Pin, on bool) error {
	// Same register bit as the output level.
	return m.WritePin(port, pin, on)
}

func (m *Model) ReadPin(port Port, pin Pin) (bool, error) {
	if err := check(port, pin); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinRegister(port)&(1<<pin) != 0, nil
}

// pinRegister computes PINx. Must be called with the mutex held.
func (m *Model) pinRegister(port Port) uint8 {
	out := m.ddr[port] & m.port[port]
	in := ^m.ddr[port]
	// Inputs follow an external driver if there is one, else the pull-up.
	ext := in & ((m.driven[port] & m.external[port]) | (^m.driven[port] & m.port[port]))
	return out | ext
}

// Drive applies an external level to an input pin, as a peer device or a
// button would.
func (m *Model) Drive(port Port, pin Pin, high bool) error {
	if err := check(port, pin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driven[port] |= 1 << pin
	if high {
		m.external[port] |= 1 << pin
	} else {
		m.external[port] &^= 1 << pin
	}
	return nil
}

// Release stops driving an input pin externally.
func (m *Model) Release(port Port, pin Pin) error {
	if err := check(port, pin); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driven[port] &^= 1 << pin
	return nil
}

// Direction reports how the pin is currently programmed.
func (m *Model) Direction(port Port, pin Pin) Direction {
	if check(port, pin) != nil {
		return Input
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ddr[port]&(1<<pin) != 0 {
		return Output
	}
	return Input
}

// PullUp reports whether the internal pull-up of an input pin is on.
func (m *Model) PullUp(port Port, pin Pin) bool {
	if check(port, pin) != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	mask := uint8(1) << pin
	return m.ddr[port]&mask == 0 && m.port[port]&mask != 0
}

// Registers returns a snapshot of DDRx, PORTx and PINx for one port.
func (m *Model) Registers(port Port) (ddr, prt, pin uint8) {
	if port >= NumPorts {
		return 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ddr[port], m.port[port], m.pinRegister(port)
}
