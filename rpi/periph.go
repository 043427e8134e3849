package rpi

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/physic"
	pspi "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"lautenbacher.net/avrhal/config"
)

// PeriphMaster talks to the kernel spidev driver, e.g. /dev/spidev0.0.
type PeriphMaster struct {
	*master
	conf *config.Config
	port pspi.PortCloser
}

func NewPeriphMaster(conf *config.Config) *PeriphMaster {
	return &PeriphMaster{conf: conf}
}

func (p *PeriphMaster) Open() error {
	cfg, err := busSettings(p.conf)
	if err != nil {
		return err
	}

	slog.Info("Initialise GPIO and Spi...", "backend", "periph", "device", p.conf.Hardware.SPIDevice)
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to init periph: %w", err)
	}

	p.port, err = spireg.Open(p.conf.Hardware.SPIDevice)
	if err != nil {
		return fmt.Errorf("failed to open spi: %w", err)
	}

	hz := Frequency(p.conf.Hardware, cfg.Rate)
	conn, err := p.port.Connect(physic.Frequency(hz)*physic.Hertz, pspi.Mode(cfg.Mode()), 8)
	if err != nil {
		p.port.Close()
		return fmt.Errorf("failed to connect to spi device: %w", err)
	}
	slog.Info("SPI ready", "backend", "periph", "hz", hz, "mode", cfg.Mode(), "order", cfg.Order)

	p.master = &master{
		name:  "periph",
		order: cfg.Order,
		tx: func(buf []byte) error {
			read := make([]byte, len(buf))
			if err := conn.Tx(buf, read); err != nil {
				return err
			}
			copy(buf, read)
			return nil
		},
	}
	return nil
}

func (p *PeriphMaster) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("failed to close spi port: %w", err)
	}
	return nil
}
