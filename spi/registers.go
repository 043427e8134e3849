package spi

import "lautenbacher.net/avrhal/gpio"

// SPCR bit positions.
const (
	SPR0 = 0
	SPR1 = 1
	CPHA = 2
	CPOL = 3
	MSTR = 4
	DORD = 5
	SPE  = 6
	SPIE = 7
)

// SPSR bit positions.
const (
	SPI2X = 0
	WCOL  = 6
	SPIF  = 7
)

const sprMask = 0x03

// Registers is the capability the driver needs from the peripheral: read
// and write access to SPCR, SPSR and SPDR. Reading Status while SPIF is set
// and then accessing Data clears SPIF; implementations must keep that.
type Registers interface {
	Control() uint8
	SetControl(v uint8)
	Status() uint8
	SetStatus(v uint8)
	Data() uint8
	SetData(v uint8)
}

// Bus pins. They live on one port and are fixed by the silicon.
const (
	PinsPort = gpio.PortB
	SSPin    = gpio.Pin(4)
	MOSIPin  = gpio.Pin(5)
	MISOPin  = gpio.Pin(6)
	SCKPin   = gpio.Pin(7)
)
