// Package sim is a software model of the peripherals, for running the
// drivers without a chip: an SPI block with SPIF/WCOL behaviour, a link
// between two simulated MCUs, scripted peers and the interrupt registers.
package sim

import (
	"math/bits"
	"sync"

	"lautenbacher.net/avrhal/spi"
)

// Floating is what MISO reads when nothing drives it.
const Floating byte = 0xFF

const (
	spif = 1 << spi.SPIF
	wcol = 1 << spi.WCOL
)

// Transfer is one byte clocked by a master, each side as its own SPDR saw it.
type Transfer struct {
	MOSI byte
	MISO byte
}

// Device is a peer that answers every clock immediately, unlike a linked
// SPI block which has to load SPDR first.
type Device interface {
	Shift(mosi byte) (miso byte)
}

// SPI models SPCR, SPSR and SPDR of one MCU. It implements spi.Registers.
//
// A master transfer starts on the SPDR write. Linked to another SPI block
// in slave role, the transfer waits until that slave has written its own
// SPDR; the master's SPIF stays clear meanwhile. Real hardware does not
// wait, there the application paces the master.
type SPI struct {
	mu         *sync.Mutex
	spcr       uint8
	spsr       uint8
	shift      uint8
	rx         uint8
	armed      bool
	pending    bool
	statusSeen bool
	peer       *SPI
	device     Device
	observers  []func(Transfer)
}

func NewSPI() *SPI {
	return &SPI{mu: &sync.Mutex{}}
}

// Connect wires two SPI blocks together. It must be called before either is
// used; afterwards both share one lock.
func Connect(a, b *SPI) {
	shared := &sync.Mutex{}
	a.mu, b.mu = shared, shared
	a.peer, b.peer = b, a
}

// Attach puts an always-ready device on the bus. A master clocks it when no
// SPI block is connected.
func (s *SPI) Attach(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = d
}

// Observe registers fn to be called for every completed transfer this block
// takes part in. fn runs with the model locked and must not touch it.
func (s *SPI) Observe(fn func(Transfer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *SPI) Control() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spcr
}

func (s *SPI) SetControl(v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spcr = v
}

func (s *SPI) Status() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spsr&spif != 0 {
		s.statusSeen = true
	}
	return s.spsr
}

// SetStatus only changes SPI2X; the flags are read only.
func (s *SPI) SetStatus(v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	const x2 = 1 << spi.SPI2X
	s.spsr = s.spsr&^x2 | v&x2
}

func (s *SPI) Data() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessData()
	return s.rx
}

func (s *SPI) SetData(v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessData()

	if !s.enabled() {
		s.shift = v
		return
	}
	if !s.master() {
		s.shift = v
		s.armed = true
		if s.peer != nil && s.peer.pending && s.peer.master() {
			complete(s.peer, s)
		}
		return
	}
	if s.pending {
		s.spsr |= wcol
		return
	}
	s.shift = v
	s.start()
}

// accessData clears SPIF and WCOL if SPSR was read with SPIF set since
// the last SPDR access.
func (s *SPI) accessData() {
	if s.statusSeen && s.spsr&spif != 0 {
		s.spsr &^= spif | wcol
	}
	s.statusSeen = false
}

func (s *SPI) enabled() bool { return s.spcr&(1<<spi.SPE) != 0 }
func (s *SPI) master() bool  { return s.spcr&(1<<spi.MSTR) != 0 }

func (s *SPI) lsbFirst() bool { return s.spcr&(1<<spi.DORD) != 0 }

// start begins a master transfer. Must be called with the lock held.
func (s *SPI) start() {
	switch {
	case s.peer != nil && s.peer.enabled() && !s.peer.master():
		if s.peer.armed {
			complete(s, s.peer)
		} else {
			s.pending = true
		}
	case s.peer == nil && s.device != nil:
		miso := s.device.Shift(toWire(s.shift, s.lsbFirst()))
		s.finish(toWire(miso, s.lsbFirst()))
	default:
		s.finish(Floating)
	}
}

func (s *SPI) finish(rx byte) {
	s.rx = rx
	s.spsr |= spif
	s.notify(Transfer{MOSI: s.shift, MISO: rx})
}

func (s *SPI) notify(t Transfer) {
	for _, fn := range s.observers {
		fn(t)
	}
}

// complete swaps the shift registers of master m and slave sl through the
// wire. Each side applies its own bit order, so a DORD mismatch reverses
// the bits. Both locks are the same shared mutex, held by the caller.
func complete(m, sl *SPI) {
	mosi := toWire(m.shift, m.lsbFirst())
	miso := toWire(sl.shift, sl.lsbFirst())
	m.rx = toWire(miso, m.lsbFirst())
	sl.rx = toWire(mosi, sl.lsbFirst())
	m.pending = false
	sl.armed = false
	m.spsr |= spif
	sl.spsr |= spif

	t := Transfer{MOSI: m.shift, MISO: sl.shift}
	m.notify(t)
	sl.notify(t)
}

// toWire maps between a byte and the bit sequence on the wire, written
// MSB first. Reversal is its own inverse.
func toWire(b byte, lsbFirst bool) byte {
	if lsbFirst {
		return bits.Reverse8(b)
	}
	return b
}

// Snapshot is the register state at one instant.
type Snapshot struct {
	SPCR, SPSR, SPDR uint8
	Pending          bool
}

func (s *SPI) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{SPCR: s.spcr, SPSR: s.spsr, SPDR: s.rx, Pending: s.pending || s.armed}
}
