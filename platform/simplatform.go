package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/gpio"
	"lautenbacher.net/avrhal/sim"
	"lautenbacher.net/avrhal/spi"
	"lautenbacher.net/avrhal/util"
)

// PortState is DDRx, PORTx and PINx of one port.
type PortState struct {
	DDR, PORT, PIN uint8
}

// State is a snapshot of the local simulated MCU.
type State struct {
	SPI        sim.Snapshot
	Ports      [gpio.NumPorts]PortState
	Interrupts [exti.NumRegisters]uint8
	Role       spi.Role
	Config     spi.Config
}

// SimPlatform runs the local MCU and a responder MCU on a simulated bus.
// The responder takes the opposite role: as slave it answers every
// terminated string with the same string and pulses INT0 on the local MCU
// when the answer is ready; as master it sends the greeting, reads the
// answer and repeats.
type SimPlatform struct {
	conf     *config.Config
	role     spi.Role
	cfg      spi.Config
	spi      *sim.SPI
	pins     *gpio.Model
	irq      *sim.Interrupts
	exti     *exti.Controller
	bus      *spi.Bus
	peer     *responder
	triggers *util.Batch[string, *util.Trigger]
	counts   map[exti.Line]int
	countsMu sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	errs     chan error
}

var _ Inspector = (*SimPlatform)(nil)

func NewSimPlatform(conf *config.Config) *SimPlatform {
	return &SimPlatform{
		conf:     conf,
		triggers: util.NewBatch[string, *util.Trigger](),
		counts:   make(map[exti.Line]int),
	}
}

func (s *SimPlatform) Start() error {
	var err error
	if s.role, err = s.conf.Bus.SPIRole(); err != nil {
		return err
	}
	if s.cfg, err = s.conf.Bus.SPIConfig(); err != nil {
		return err
	}
	slog.Info("Starting platform", "backend", config.BackendSim, "role", s.role, "rate", s.cfg.Rate)

	s.spi = sim.NewSPI()
	peerSPI := sim.NewSPI()
	sim.Connect(s.spi, peerSPI)
	s.spi.Observe(func(t sim.Transfer) {
		slog.Debug("sim transfer", "mosi", t.MOSI, "miso", t.MISO)
	})

	s.pins = gpio.NewModel()
	s.bus = spi.New(s.spi, s.pins)
	if err := s.bus.Init(s.role, s.cfg); err != nil {
		return fmt.Errorf("failed to init local bus: %w", err)
	}

	if err := s.setupInterrupts(); err != nil {
		return err
	}

	peerRole := spi.Slave
	if s.role == spi.Slave {
		peerRole = spi.Master
	}
	peerBus := spi.New(peerSPI, gpio.NewModel())
	if err := peerBus.Init(peerRole, s.cfg); err != nil {
		return fmt.Errorf("failed to init responder bus: %w", err)
	}
	s.peer = &responder{
		bus:      peerBus,
		greeting: []byte(s.conf.Hardware.Responder.Greeting),
		ready:    func() { s.irq.Raise(exti.INT0) },
		pace:     100 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.errs = make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if peerRole == spi.Slave {
			s.errs <- s.peer.runSlave(ctx)
		} else {
			s.errs <- s.peer.runMaster(ctx)
		}
	}()
	return nil
}

// setupInterrupts programs the lines from the configuration in line order.
// Every handler counts and publishes its line.
func (s *SimPlatform) setupInterrupts() error {
	s.irq = sim.NewInterrupts()
	s.exti = exti.New(s.irq, s.pins)
	s.irq.Vector(s.exti.Dispatch)

	lines := s.conf.Interrupts.Lines()
	keys := maps.Keys(lines)
	slices.Sort(keys)
	for _, line := range keys {
		lc := lines[line]
		if !lc.Enabled {
			continue
		}
		sense, err := lc.ParseSense(line)
		if err != nil {
			return err
		}
		if err := s.exti.Configure(line, sense, lc.PullUp); err != nil {
			return err
		}
		s.exti.Handle(line, s.counter(line))
		if err := s.exti.Enable(line); err != nil {
			return err
		}
		slog.Debug("Interrupt enabled", "line", line, "sense", sense, "pullup", lc.PullUp)
	}
	if s.conf.Interrupts.Global {
		s.exti.EnableGlobal()
	}
	return nil
}

func (s *SimPlatform) counter(line exti.Line) exti.Handler {
	return func() {
		s.countsMu.Lock()
		s.counts[line]++
		n := s.counts[line]
		s.countsMu.Unlock()
		s.triggers.Send(line.String(), util.NewTrigger(line.String(), n, time.Now()))
	}
}

func (s *SimPlatform) Stop() error {
	if s.cancel == nil {
		return errors.New("sim: not started")
	}
	slog.Info("Stopping platform", "backend", config.BackendSim)
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	return <-s.errs
}

func (s *SimPlatform) Transceiver() Transceiver { return s.bus }

func (s *SimPlatform) Role() spi.Role { return s.role }

func (s *SimPlatform) Name() string { return config.BackendSim }

// Interrupts gives access to the local interrupt controller.
func (s *SimPlatform) Interrupts() *exti.Controller { return s.exti }

func (s *SimPlatform) Triggers() *util.Batch[string, *util.Trigger] { return s.triggers }

func (s *SimPlatform) Inspect() State {
	st := State{
		SPI:    s.spi.Snapshot(),
		Role:   s.role,
		Config: s.cfg,
	}
	for p := gpio.PortA; p < gpio.NumPorts; p++ {
		ddr, prt, pin := s.pins.Registers(p)
		st.Ports[p] = PortState{DDR: ddr, PORT: prt, PIN: pin}
	}
	for r := exti.GICR; r < exti.NumRegisters; r++ {
		st.Interrupts[r] = s.irq.Get(r)
	}
	return st
}
