// Package monitor is the terminal front end: it shows the bus traffic, the
// register state of a simulated MCU and the log, and runs the string
// operations on key press.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/logging"
	"lautenbacher.net/avrhal/platform"
	"lautenbacher.net/avrhal/session"
	"lautenbacher.net/avrhal/util"
)

const (
	title        = " AVRHAL Monitor "
	historyLines = 12
	refresh      = 200 * time.Millisecond
)

type Monitor struct {
	plat      platform.Platform
	inspector platform.Inspector
	tap       *Tap
	session   *session.Session
	message   []byte
	ossignal  chan os.Signal

	tviewapp  *tview.Application
	intro     *tview.TextView
	registers *tview.TextView
	traffic   *tview.TextView
	logView   *tview.TextView

	triggers     map[string]*util.Trigger
	busy         atomic.Bool
	logFlushOnce sync.Once
	readyChan    chan struct{}
	stop         chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// New builds a monitor for a started platform. message is what the send
// and echo keys transmit.
func New(plat platform.Platform, conf *config.Config, message string, ossignal chan os.Signal) *Monitor {
	tap := NewTap(plat.Transceiver())
	m := &Monitor{
		plat:      plat,
		tap:       tap,
		session:   session.New(tap, conf.Bus.Timeout),
		message:   []byte(message),
		ossignal:  ossignal,
		triggers:  make(map[string]*util.Trigger),
		readyChan: make(chan struct{}),
		stop:      make(chan struct{}),
	}
	m.inspector, _ = plat.(platform.Inspector)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Ready is closed once the first frame is drawn and the log goes to the
// log pane.
func (m *Monitor) Ready() <-chan struct{} {
	return m.readyChan
}

func (m *Monitor) Start() {
	m.setupUI()

	m.wg.Add(1)
	go m.updater()

	go func() {
		if err := m.tviewapp.Run(); err != nil {
			slog.Error("Error running monitor", "error", err)
			m.ossignal <- os.Interrupt
		}
	}()
}

// Stop ends running operations and the screen. The log goes back to stderr.
func (m *Monitor) Stop() {
	m.cancel()
	close(m.stop)
	m.wg.Wait()
	m.tviewapp.Stop()
	logging.SetOutput(os.Stderr)
}

func (m *Monitor) introText() string {
	line1 := fmt.Sprintf("Platform [#ffff00]%s[white] as [#ffff00]%s[white] | message [#ffff00]%q[white]",
		m.plat.Name(), m.plat.Role(), m.message)
	line2 := "Hit [#ff0000]s[-] to send, [#ff0000]v[-] to receive, [#ff0000]e[-] for echo"
	line3 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s\n%s", line1, line2, line3)
}

func (m *Monitor) setupUI() {
	m.tviewapp = tview.NewApplication()

	m.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	m.intro.SetText(m.introText())
	m.intro.SetBorder(true).SetTitle(title).SetTitleColor(tcell.ColorLightBlue)
	m.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	m.registers = tview.NewTextView().SetDynamicColors(true)
	m.registers.SetBorder(true).SetTitle(" Registers ").SetTitleColor(tcell.ColorLightBlue)
	m.registers.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))
	if m.inspector == nil {
		m.registers.SetText(" not available on " + m.plat.Name())
	}

	m.traffic = tview.NewTextView().SetDynamicColors(true)
	m.traffic.SetBorder(true).SetTitle(" Traffic ").SetTitleColor(tcell.ColorLightBlue)
	m.traffic.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	m.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			m.logView.ScrollToEnd()
			m.tviewapp.Draw()
		})
	m.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	m.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	middle := tview.NewFlex().
		AddItem(m.registers, 44, 0, false).
		AddItem(m.traffic, 0, 1, false)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(m.intro, 5, 0, false).
		AddItem(middle, historyLines+18, 0, false).
		AddItem(m.logView, 0, 1, true)

	m.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		m.logFlushOnce.Do(func() {
			logging.SetOutput(tview.ANSIWriter(m.logView))
			close(m.readyChan)
		})
	})

	m.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			m.ossignal <- os.Interrupt
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				m.ossignal <- os.Interrupt
				return nil
			case 'r', 'R':
				m.ossignal <- syscall.SIGHUP
				return nil
			case 's', 'S':
				m.run("send", func(ctx context.Context) error {
					return m.session.Send(ctx, m.message)
				})
				return nil
			case 'v', 'V':
				m.run("receive", func(ctx context.Context) error {
					_, err := m.session.Receive(ctx)
					return err
				})
				return nil
			case 'e', 'E':
				m.run("echo", func(ctx context.Context) error {
					got, err := m.session.Echo(ctx, m.plat.Role(), m.message)
					if err == nil {
						slog.Info("Echo complete", "msg", string(got))
					}
					return err
				})
				return nil
			}
		case tcell.KeyUp:
			row, col := m.logView.GetScrollOffset()
			m.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := m.logView.GetScrollOffset()
			m.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	m.tviewapp.SetRoot(layout, true)
}

// run starts op unless another one is still in progress.
func (m *Monitor) run(name string, op func(ctx context.Context) error) {
	if !m.busy.CompareAndSwap(false, true) {
		slog.Warn("Operation still running, key ignored", "op", name)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.busy.Store(false)
		if err := op(m.ctx); err != nil {
			slog.Error("Operation failed", "op", name, "error", err)
		}
	}()
}

// updater redraws the panes when the traffic or the triggers change, and
// the registers periodically.
func (m *Monitor) updater() {
	defer m.wg.Done()
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	var triggerChan <-chan struct{}
	if m.inspector != nil {
		triggerChan = m.inspector.Triggers().Channel()
	}

	for {
		select {
		case <-m.stop:
			return
		case <-m.tap.Updates().Channel():
			recs := m.tap.History()
			text := formatLatency(recs) + "\n\n" + formatRecords(recs, historyLines)
			m.tviewapp.QueueUpdateDraw(func() {
				m.traffic.SetText(text)
			})
		case <-triggerChan:
			for id, t := range m.inspector.Triggers().ConsumeValues() {
				m.triggers[id] = t
				slog.Debug("Interrupt", "line", id, "count", t.Count)
			}
			m.drawRegisters()
		case <-ticker.C:
			m.drawRegisters()
		}
	}
}

func (m *Monitor) drawRegisters() {
	if m.inspector == nil {
		return
	}
	text := formatRegisters(m.inspector.Inspect()) + "\n\n" +
		formatLines(m.inspector.Interrupts()) + "\n\n" + formatTriggers(m.triggers)
	m.tviewapp.QueueUpdateDraw(func() {
		m.registers.SetText(text)
	})
}
