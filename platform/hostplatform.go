package platform

import (
	"errors"
	"fmt"
	"log/slog"

	"lautenbacher.net/avrhal/spi"
)

// hostMaster is a host side SPI controller.
type hostMaster interface {
	Transceiver
	Open() error
	Close() error
}

// HostPlatform drives a real AVR slave from the host.
type HostPlatform struct {
	name   string
	master hostMaster
	open   bool
}

func newHostPlatform(name string, m hostMaster) *HostPlatform {
	return &HostPlatform{name: name, master: m}
}

func (h *HostPlatform) Start() error {
	slog.Info("Starting platform", "backend", h.name)
	if err := h.master.Open(); err != nil {
		return fmt.Errorf("%s: %w", h.name, err)
	}
	h.open = true
	return nil
}

func (h *HostPlatform) Stop() error {
	if !h.open {
		return errors.New(h.name + ": not started")
	}
	h.open = false
	slog.Info("Stopping platform", "backend", h.name)
	return h.master.Close()
}

func (h *HostPlatform) Transceiver() Transceiver { return h.master }

// Role is always master: the host clocks the AVR.
func (h *HostPlatform) Role() spi.Role { return spi.Master }

func (h *HostPlatform) Name() string { return h.name }
