//go:build tinygo && avr

package spi

import (
	"runtime/volatile"
	"unsafe"
)

// ATmega32 data space addresses of the SPI block.
var (
	spcr = (*volatile.Register8)(unsafe.Pointer(uintptr(0x2D)))
	spsr = (*volatile.Register8)(unsafe.Pointer(uintptr(0x2E)))
	spdr = (*volatile.Register8)(unsafe.Pointer(uintptr(0x2F)))
)

// Hardware is the on-chip SPI peripheral.
type Hardware struct{}

func (Hardware) Control() uint8     { return spcr.Get() }
func (Hardware) SetControl(v uint8) { spcr.Set(v) }
func (Hardware) Status() uint8      { return spsr.Get() }
func (Hardware) SetStatus(v uint8)  { spsr.Set(v) }
func (Hardware) Data() uint8        { return spdr.Get() }
func (Hardware) SetData(v uint8)    { spdr.Set(v) }
