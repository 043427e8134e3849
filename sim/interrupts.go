package sim

import (
	"sync"

	"lautenbacher.net/avrhal/exti"
)

// Interrupts models GICR, GIFR, MCUCR, MCUCSR and SREG. It implements
// exti.Registers.
type Interrupts struct {
	mu     sync.Mutex
	regs   [exti.NumRegisters]uint8
	vector func(exti.Line)
}

func NewInterrupts() *Interrupts {
	return &Interrupts{}
}

func (in *Interrupts) Get(r exti.Register) uint8 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.regs[r]
}

// Set stores v. For GIFR every one bit clears the matching flag.
func (in *Interrupts) Set(r exti.Register, v uint8) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if r == exti.GIFR {
		in.regs[r] &^= v
		return
	}
	in.regs[r] = v
}

// Vector sets what runs when an interrupt is taken, normally a
// Controller's Dispatch.
func (in *Interrupts) Vector(fn func(exti.Line)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.vector = fn
}

// Raise signals the sense condition on line. The flag is set; when the
// line and the I bit are both enabled the flag is cleared again and the
// vector runs, as the chip does on taking the interrupt. It reports
// whether the vector ran.
func (in *Interrupts) Raise(line exti.Line) bool {
	in.mu.Lock()
	in.regs[exti.GIFR] |= line.Mask()
	take := in.regs[exti.GICR]&line.Mask() != 0 && in.regs[exti.SREG]&(1<<exti.IBit) != 0
	vector := in.vector
	if take {
		in.regs[exti.GIFR] &^= line.Mask()
	}
	in.mu.Unlock()

	if take && vector != nil {
		vector(line)
	}
	return take
}
