// Package platform selects where the bus lives: a simulated pair of MCUs or
// a host SPI master talking to a real AVR.
package platform

import (
	"fmt"

	"lautenbacher.net/avrhal/buspirate"
	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/rpi"
	"lautenbacher.net/avrhal/spi"
	"lautenbacher.net/avrhal/util"
)

// Transceiver is a bus usable both unbounded and with a context.
type Transceiver interface {
	spi.Transceiver
	spi.ContextTransceiver
}

// Platform abstracts the real hardware away from the simulation.
type Platform interface {
	// Start opens the hardware or starts the simulated peer. The
	// transceiver is usable afterwards.
	Start() error

	// Stop releases everything Start acquired and reports all errors.
	Stop() error

	Transceiver() Transceiver
	Role() spi.Role
	Name() string
}

// Inspector is implemented by platforms that can show their register state.
type Inspector interface {
	Inspect() State
	Triggers() *util.Batch[string, *util.Trigger]
	Interrupts() *exti.Controller
}

// New builds the platform named by Hardware.Backend. conf must be valid.
func New(conf *config.Config) (Platform, error) {
	switch conf.Hardware.Backend {
	case config.BackendSim:
		return NewSimPlatform(conf), nil
	case config.BackendRpio:
		return newHostPlatform(config.BackendRpio, rpi.NewRpioMaster(conf)), nil
	case config.BackendPeriph:
		return newHostPlatform(config.BackendPeriph, rpi.NewPeriphMaster(conf)), nil
	case config.BackendBusPirate:
		return newHostPlatform(config.BackendBusPirate, buspirate.NewMaster(conf)), nil
	}
	return nil, fmt.Errorf("unknown backend %q", conf.Hardware.Backend)
}
