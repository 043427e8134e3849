package rpi

import (
	"fmt"
	"log/slog"

	"github.com/stianeikeland/go-rpio/v4"

	"lautenbacher.net/avrhal/config"
)

// RpioMaster uses SPI0 with chip select CE0 through /dev/mem.
type RpioMaster struct {
	*master
	conf *config.Config
}

func NewRpioMaster(conf *config.Config) *RpioMaster {
	return &RpioMaster{conf: conf}
}

func (r *RpioMaster) Open() error {
	cfg, err := busSettings(r.conf)
	if err != nil {
		return err
	}

	slog.Info("Initialise GPIO and Spi...", "backend", "rpio")
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return fmt.Errorf("failed to begin spi: %w", err)
	}

	hz := Frequency(r.conf.Hardware, cfg.Rate)
	rpio.SpiSpeed(hz)
	rpio.SpiMode(uint8(cfg.Polarity), uint8(cfg.Edge))
	rpio.SpiChipSelect(0)
	slog.Info("SPI ready", "backend", "rpio", "hz", hz, "mode", cfg.Mode(), "order", cfg.Order)

	r.master = &master{
		name:  "rpio",
		order: cfg.Order,
		tx: func(buf []byte) error {
			rpio.SpiExchange(buf)
			return nil
		},
	}
	return nil
}

func (r *RpioMaster) Close() error {
	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("failed to close rpio: %w", err)
	}
	return nil
}
