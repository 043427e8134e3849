package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/spi"
)

const validBus = `
Bus:
  Role: master
  DataOrder: msb
  ClockPolarity: low
  SamplingEdge: leading
  DoubleSpeed: false
  ClockDivisor: 16
  Timeout: 2s
`

const validInterrupts = `
Interrupts:
  INT0: { Enabled: true, Sense: falling, PullUp: true }
  INT1: { Enabled: false, Sense: rising }
  INT2: { Enabled: false, Sense: falling, PullUp: true }
  Global: true
`

const validHardware = `
Hardware:
  Backend: sim
  SPIDevice: /dev/spidev0.0
  SPIFrequency: 1000000
  FCPU: 16000000
  SerialPort: /dev/ttyUSB0
  SerialBaud: 115200
  Responder:
    Greeting: "HELLO"
Logging:
  Level: "DEBUG"
  Format: "text"
  File: "/tmp/avrhal.log"
`

func getBaseConfig() string {
	return validBus + validInterrupts + validHardware
}

func createConfigFile(t *testing.T, configData string) string {
	configFile := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(configFile, []byte(configData), 0o644)
	if err != nil {
		t.Fatalf("Failed to write dummy config file: %v", err)
	}
	return configFile
}

func TestReadConfig(t *testing.T) {
	configFile := createConfigFile(t, getBaseConfig())

	conf, err := ReadConfig(configFile)
	require.NoError(t, err, "ReadConfig should not return an error")

	assert.Equal(t, "master", conf.Bus.Role)
	assert.Equal(t, 16, conf.Bus.ClockDivisor)
	assert.Equal(t, 2*time.Second, conf.Bus.Timeout, "Bus.Timeout should be 2s")

	assert.True(t, conf.Interrupts.INT0.Enabled)
	assert.True(t, conf.Interrupts.INT0.PullUp)
	assert.Equal(t, "rising", conf.Interrupts.INT1.Sense)
	assert.True(t, conf.Interrupts.Global)

	assert.Equal(t, BackendSim, conf.Hardware.Backend)
	assert.Equal(t, 16000000, conf.Hardware.FCPU)
	assert.Equal(t, "HELLO", conf.Hardware.Responder.Greeting)

	assert.Equal(t, "DEBUG", conf.Logging.Level)
	assert.Equal(t, "text", conf.Logging.Format)
	assert.Equal(t, "/tmp/avrhal.log", conf.Logging.File)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "can't read config file")
}

func TestReadConfig_BadYAML(t *testing.T) {
	configFile := createConfigFile(t, "Bus: [unclosed")
	_, err := ReadConfig(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "can't decode config file")
}

func TestReadConfig_DivisorNotInSpeedMode(t *testing.T) {
	configData := strings.Replace(getBaseConfig(), "ClockDivisor: 16", "ClockDivisor: 2", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.ErrorIs(t, err, spi.ErrInvalidClockRate)

	configData = strings.Replace(configData, "DoubleSpeed: false", "DoubleSpeed: true", 1)
	conf, err := ReadConfig(createConfigFile(t, configData))
	require.NoError(t, err)
	cfg, err := conf.Bus.SPIConfig()
	require.NoError(t, err)
	assert.Equal(t, spi.Fosc2, cfg.Rate)
}

func TestReadConfig_INT2LevelSense(t *testing.T) {
	configData := strings.Replace(getBaseConfig(), "INT2: { Enabled: false, Sense: falling", "INT2: { Enabled: false, Sense: low", 1)
	configFile := createConfigFile(t, configData)

	_, err := ReadConfig(configFile)
	assert.ErrorIs(t, err, exti.ErrUnsupportedSense)
	assert.Contains(t, err.Error(), "Interrupts.INT2")
}

func TestReadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		from, to string
		wantMsg  string
	}{
		{"Role: master", "Role: boss", "must be master or slave"},
		{"DataOrder: msb", "DataOrder: middle", "must be msb or lsb"},
		{"ClockPolarity: low", "ClockPolarity: sideways", "must be low or high"},
		{"SamplingEdge: leading", "SamplingEdge: never", "must be leading or trailing"},
		{"Timeout: 2s", "Timeout: -1s", "must be non-negative"},
		{"Backend: sim", "Backend: jtag", "must be one of sim, rpio, periph, buspirate"},
		{"FCPU: 16000000", "FCPU: 0", "Hardware.FCPU (0) must be positive"},
		{`Greeting: "HELLO"`, `Greeting: "HI#"`, "must not contain"},
		{`Format: "text"`, `Format: "xml"`, "must be text or json"},
		{`Level: "DEBUG"`, `Level: "LOUD"`, "must be DEBUG, INFO, WARN or ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.to, func(t *testing.T) {
			configFile := createConfigFile(t, strings.Replace(getBaseConfig(), tt.from, tt.to, 1))
			_, err := ReadConfig(configFile)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	conf, err := ReadConfig(createConfigFile(t, getBaseConfig()))
	require.NoError(t, err)

	conf.Bus.Role = "boss"
	conf.Hardware.FCPU = 0
	conf.Logging.Format = "xml"
	errs := multierr.Errors(conf.Validate())
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "Bus.Role")
	assert.Contains(t, errs[1].Error(), "Hardware.FCPU")
	assert.Contains(t, errs[2].Error(), "Logging.Format")
}

func TestReadConfig_BackendRequirements(t *testing.T) {
	configData := strings.Replace(getBaseConfig(), "Backend: sim", "Backend: buspirate", 1)
	configData = strings.Replace(configData, "SerialPort: /dev/ttyUSB0", "SerialPort: \"\"", 1)
	_, err := ReadConfig(createConfigFile(t, configData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SerialPort is required")

	configData = strings.Replace(getBaseConfig(), "Backend: sim", "Backend: periph", 1)
	configData = strings.Replace(configData, "SPIDevice: /dev/spidev0.0", "SPIDevice: \"\"", 1)
	_, err = ReadConfig(createConfigFile(t, configData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPIDevice is required")
}

func TestBusConfig_SPIConfig(t *testing.T) {
	b := BusConfig{DataOrder: "LSB", ClockPolarity: "high", SamplingEdge: "trailing", DoubleSpeed: true, ClockDivisor: 64}
	cfg, err := b.SPIConfig()
	require.NoError(t, err)
	assert.Equal(t, spi.Config{Order: spi.LSBFirst, Polarity: spi.IdleHigh, Edge: spi.Trailing, Rate: spi.Fosc64Double}, cfg)

	role, err := BusConfig{Role: "Slave"}.SPIRole()
	require.NoError(t, err)
	assert.Equal(t, spi.Slave, role)
}

func TestLineConfig_ParseSense(t *testing.T) {
	s, err := LineConfig{}.ParseSense(exti.INT0)
	require.NoError(t, err)
	assert.Equal(t, exti.FallingEdge, s, "empty sense means falling")

	s, err = LineConfig{Sense: "change"}.ParseSense(exti.INT1)
	require.NoError(t, err)
	assert.Equal(t, exti.AnyChange, s)

	_, err = LineConfig{Sense: "change"}.ParseSense(exti.INT2)
	assert.ErrorIs(t, err, exti.ErrUnsupportedSense)

	_, err = LineConfig{Sense: "sometimes"}.ParseSense(exti.INT0)
	assert.Error(t, err)
}
