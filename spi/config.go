package spi

import (
	"errors"
	"fmt"
	"math/bits"
)

// DataOrder selects which bit of a byte is shifted out first.
type DataOrder uint8

const (
	MSBFirst DataOrder = iota
	LSBFirst
)

// OnWire returns b in the bit order an MSB-first shifter has to send so
// that the wire carries b in order o. Host controllers without an LSB-first
// mode use it on both directions; it is its own inverse.
func (o DataOrder) OnWire(b byte) byte {
	if o == LSBFirst {
		return bits.Reverse8(b)
	}
	return b
}

func (o DataOrder) String() string {
	switch o {
	case MSBFirst:
		return "msb"
	case LSBFirst:
		return "lsb"
	default:
		return fmt.Sprintf("DataOrder(%d)", uint8(o))
	}
}

// ClockPolarity is the level of SCK while the bus is idle.
type ClockPolarity uint8

const (
	IdleLow ClockPolarity = iota
	IdleHigh
)

// SamplingEdge is the SCK edge on which data is sampled.
type SamplingEdge uint8

const (
	Leading SamplingEdge = iota
	Trailing
)

// SpeedMode is the state of the SPI2X bit.
type SpeedMode uint8

const (
	NormalSpeed SpeedMode = iota
	DoubleSpeed
)

// ClockRate is one of the eight SCK divisor classes. Bits 0-1 hold the
// SPR1:SPR0 pattern and bit 2 marks the double speed classes, so a rate
// always belongs to exactly one speed mode.
type ClockRate uint8

const doubleSpeedFlag ClockRate = 1 << 2

const (
	Fosc4   ClockRate = 0
	Fosc16  ClockRate = 1
	Fosc64  ClockRate = 2
	Fosc128 ClockRate = 3

	Fosc2        ClockRate = doubleSpeedFlag | 0
	Fosc8        ClockRate = doubleSpeedFlag | 1
	Fosc32       ClockRate = doubleSpeedFlag | 2
	Fosc64Double ClockRate = doubleSpeedFlag | 3
)

var (
	ErrInvalidClockRate = errors.New("spi: clock divisor not available in speed mode")
	ErrInvalidConfig    = errors.New("spi: invalid configuration")
)

var divisors = [2][4]int{
	NormalSpeed: {4, 16, 64, 128},
	DoubleSpeed: {2, 8, 32, 64},
}

// NewClockRate returns the rate class for a divisor of F_CPU in the given
// speed mode. Asking for a divisor the mode does not have is an error; this
// is where mixing the normal and double speed classes is rejected.
func NewClockRate(mode SpeedMode, divisor int) (ClockRate, error) {
	if mode > DoubleSpeed {
		return 0, fmt.Errorf("%w: unknown speed mode %d", ErrInvalidClockRate, mode)
	}
	for spr, d := range divisors[mode] {
		if d == divisor {
			rate := ClockRate(spr)
			if mode == DoubleSpeed {
				rate |= doubleSpeedFlag
			}
			return rate, nil
		}
	}
	return 0, fmt.Errorf("%w: fosc/%d in %s mode", ErrInvalidClockRate, divisor, mode)
}

func (r ClockRate) Valid() bool {
	return r <= Fosc64Double
}

// Mode reports the speed mode the rate belongs to.
func (r ClockRate) Mode() SpeedMode {
	if r&doubleSpeedFlag != 0 {
		return DoubleSpeed
	}
	return NormalSpeed
}

// Divisor returns the F_CPU divisor, or 0 for an invalid rate.
func (r ClockRate) Divisor() int {
	if !r.Valid() {
		return 0
	}
	return divisors[r.Mode()][r&sprMask]
}

// Hz returns the SCK frequency for the given CPU clock.
func (r ClockRate) Hz(fcpu int) int {
	d := r.Divisor()
	if d == 0 {
		return 0
	}
	return fcpu / d
}

func (r ClockRate) String() string {
	if !r.Valid() {
		return fmt.Sprintf("ClockRate(%d)", uint8(r))
	}
	return fmt.Sprintf("fosc/%d", r.Divisor())
}

func (m SpeedMode) String() string {
	switch m {
	case NormalSpeed:
		return "normal"
	case DoubleSpeed:
		return "double"
	default:
		return fmt.Sprintf("SpeedMode(%d)", uint8(m))
	}
}

// Config is the bus configuration record handed to Init. Init reads it
// once and keeps no reference to it.
type Config struct {
	Order    DataOrder
	Polarity ClockPolarity
	Edge     SamplingEdge
	Rate     ClockRate
}

// Validate checks that every field holds a defined value. Init does not
// call it; an unchecked record yields whatever bit pattern its values shift
// into, exactly like the hardware would.
func (c Config) Validate() error {
	switch {
	case c.Order > LSBFirst:
		return fmt.Errorf("%w: data order %d", ErrInvalidConfig, c.Order)
	case c.Polarity > IdleHigh:
		return fmt.Errorf("%w: clock polarity %d", ErrInvalidConfig, c.Polarity)
	case c.Edge > Trailing:
		return fmt.Errorf("%w: sampling edge %d", ErrInvalidConfig, c.Edge)
	case !c.Rate.Valid():
		return fmt.Errorf("%w: clock rate %d", ErrInvalidConfig, c.Rate)
	}
	return nil
}

// Mode returns the conventional SPI mode number 0-3 (CPOL<<1 | CPHA) used by
// host SPI stacks.
func (c Config) Mode() uint8 {
	return uint8(c.Polarity)<<1 | uint8(c.Edge)
}

// Role of the device on the bus. It is fixed for a session.
type Role uint8

const (
	Master Role = iota
	Slave
)

func (r Role) String() string {
	switch r {
	case Master:
		return "master"
	case Slave:
		return "slave"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}
