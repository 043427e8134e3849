package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/spi"
)

const CONFILE = "config.yml"

// Backends understood by the platform factory.
const (
	BackendSim       = "sim"
	BackendRpio      = "rpio"
	BackendPeriph    = "periph"
	BackendBusPirate = "buspirate"
)

type Config struct {
	Bus        BusConfig        `yaml:"Bus" json:"Bus"`
	Interrupts InterruptsConfig `yaml:"Interrupts" json:"Interrupts"`
	Hardware   HardwareConfig   `yaml:"Hardware" json:"Hardware"`
	Logging    LoggingConfig    `yaml:"Logging" json:"Logging"`
}

type BusConfig struct {
	Role          string        `yaml:"Role" json:"Role"`
	DataOrder     string        `yaml:"DataOrder" json:"DataOrder"`
	ClockPolarity string        `yaml:"ClockPolarity" json:"ClockPolarity"`
	SamplingEdge  string        `yaml:"SamplingEdge" json:"SamplingEdge"`
	DoubleSpeed   bool          `yaml:"DoubleSpeed" json:"DoubleSpeed"`
	ClockDivisor  int           `yaml:"ClockDivisor" json:"ClockDivisor"`
	Timeout       time.Duration `yaml:"Timeout" json:"Timeout"`
}

type LineConfig struct {
	Enabled bool   `yaml:"Enabled" json:"Enabled"`
	Sense   string `yaml:"Sense" json:"Sense"`
	PullUp  bool   `yaml:"PullUp" json:"PullUp"`
}

type InterruptsConfig struct {
	INT0   LineConfig `yaml:"INT0" json:"INT0"`
	INT1   LineConfig `yaml:"INT1" json:"INT1"`
	INT2   LineConfig `yaml:"INT2" json:"INT2"`
	Global bool       `yaml:"Global" json:"Global"`
}

type ResponderConfig struct {
	Greeting string `yaml:"Greeting" json:"Greeting"`
}

type HardwareConfig struct {
	Backend      string          `yaml:"Backend"`
	SPIDevice    string          `yaml:"SPIDevice"`
	SPIFrequency int             `yaml:"SPIFrequency"`
	FCPU         int             `yaml:"FCPU"`
	SerialPort   string          `yaml:"SerialPort"`
	SerialBaud   int             `yaml:"SerialBaud"`
	Responder    ResponderConfig `yaml:"Responder"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// ReadConfig reads and validates the YAML file at cfile.
func ReadConfig(cfile string) (*Config, error) {
	data, err := os.ReadFile(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't read config file %s: %w", cfile, err)
	}
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Bus.SPIConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Bus.SPIRole(); err != nil {
		errs = append(errs, err)
	}
	if c.Bus.Timeout < 0 {
		errs = append(errs, fmt.Errorf("Bus.Timeout (%v) must be non-negative", c.Bus.Timeout))
	}

	for line, lc := range c.Interrupts.Lines() {
		if _, err := lc.ParseSense(line); err != nil {
			errs = append(errs, fmt.Errorf("Interrupts.%s: %w", line, err))
		}
	}

	switch c.Hardware.Backend {
	case BackendSim:
		if strings.IndexByte(c.Hardware.Responder.Greeting, spi.Sentinel) >= 0 {
			errs = append(errs, fmt.Errorf("Hardware.Responder.Greeting must not contain %q", spi.Sentinel))
		}
	case BackendRpio:
	case BackendPeriph:
		if c.Hardware.SPIDevice == "" {
			errs = append(errs, errors.New("Hardware.SPIDevice is required for the periph backend"))
		}
	case BackendBusPirate:
		if c.Hardware.SerialPort == "" {
			errs = append(errs, errors.New("Hardware.SerialPort is required for the buspirate backend"))
		}
		if c.Hardware.SerialBaud <= 0 {
			errs = append(errs, fmt.Errorf("Hardware.SerialBaud (%d) must be positive", c.Hardware.SerialBaud))
		}
	default:
		errs = append(errs, fmt.Errorf("Hardware.Backend %q must be one of sim, rpio, periph, buspirate", c.Hardware.Backend))
	}
	if c.Hardware.FCPU <= 0 {
		errs = append(errs, fmt.Errorf("Hardware.FCPU (%d) must be positive", c.Hardware.FCPU))
	}
	if c.Hardware.SPIFrequency < 0 {
		errs = append(errs, fmt.Errorf("Hardware.SPIFrequency (%d) must be non-negative", c.Hardware.SPIFrequency))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("Logging.Format %q must be text or json", c.Logging.Format))
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("Logging.Level %q must be DEBUG, INFO, WARN or ERROR", c.Logging.Level))
	}

	return multierr.Combine(errs...)
}

// SPIRole parses Bus.Role.
func (b BusConfig) SPIRole() (spi.Role, error) {
	switch strings.ToLower(b.Role) {
	case "master", "":
		return spi.Master, nil
	case "slave":
		return spi.Slave, nil
	}
	return 0, fmt.Errorf("Bus.Role %q must be master or slave", b.Role)
}

// SPIConfig builds the bus configuration record. The divisor has to exist in
// the selected speed mode.
func (b BusConfig) SPIConfig() (spi.Config, error) {
	var cfg spi.Config

	switch strings.ToLower(b.DataOrder) {
	case "msb", "":
		cfg.Order = spi.MSBFirst
	case "lsb":
		cfg.Order = spi.LSBFirst
	default:
		return cfg, fmt.Errorf("Bus.DataOrder %q must be msb or lsb", b.DataOrder)
	}

	switch strings.ToLower(b.ClockPolarity) {
	case "low", "":
		cfg.Polarity = spi.IdleLow
	case "high":
		cfg.Polarity = spi.IdleHigh
	default:
		return cfg, fmt.Errorf("Bus.ClockPolarity %q must be low or high", b.ClockPolarity)
	}

	switch strings.ToLower(b.SamplingEdge) {
	case "leading", "":
		cfg.Edge = spi.Leading
	case "trailing":
		cfg.Edge = spi.Trailing
	default:
		return cfg, fmt.Errorf("Bus.SamplingEdge %q must be leading or trailing", b.SamplingEdge)
	}

	mode := spi.NormalSpeed
	if b.DoubleSpeed {
		mode = spi.DoubleSpeed
	}
	rate, err := spi.NewClockRate(mode, b.ClockDivisor)
	if err != nil {
		return cfg, fmt.Errorf("Bus.ClockDivisor: %w", err)
	}
	cfg.Rate = rate
	return cfg, nil
}

// Lines returns the per line settings keyed by line.
func (ic InterruptsConfig) Lines() map[exti.Line]LineConfig {
	return map[exti.Line]LineConfig{
		exti.INT0: ic.INT0,
		exti.INT1: ic.INT1,
		exti.INT2: ic.INT2,
	}
}

// ParseSense maps the Sense string to the register pattern. An empty string
// means falling edge, which every line supports.
func (lc LineConfig) ParseSense(line exti.Line) (exti.Sense, error) {
	var s exti.Sense
	switch strings.ToLower(lc.Sense) {
	case "falling", "":
		s = exti.FallingEdge
	case "rising":
		s = exti.RisingEdge
	case "low", "low-level":
		s = exti.LowLevel
	case "change", "any-change":
		s = exti.AnyChange
	default:
		return 0, fmt.Errorf("sense %q must be low, change, falling or rising", lc.Sense)
	}
	if line == exti.INT2 && s != exti.FallingEdge && s != exti.RisingEdge {
		return 0, fmt.Errorf("%w: %s on %s", exti.ErrUnsupportedSense, s, line)
	}
	return s, nil
}
