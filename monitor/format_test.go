package monitor

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/gpio"
	"lautenbacher.net/avrhal/platform"
	"lautenbacher.net/avrhal/sim"
	"lautenbacher.net/avrhal/spi"
	"lautenbacher.net/avrhal/util"
)

func TestCalculateStats(t *testing.T) {
	stats := calculateStats([]int{10, 20, 30, 40, 50})

	assert.Equal(t, 10, stats.min)
	assert.Equal(t, 50, stats.max)
	assert.Equal(t, 30.0, stats.mean)
	assert.Equal(t, 30.0, stats.median)
	// sqrt((400+100+0+100+400)/5)
	assert.InDelta(t, math.Sqrt(200), stats.stdDev, 1e-9)
}

func TestCalculateStats_Empty(t *testing.T) {
	assert.Equal(t, latencyStats{}, calculateStats(nil))
}

func TestCalculateStats_EvenLength(t *testing.T) {
	assert.Equal(t, 25.0, calculateStats([]int{40, 10, 30, 20}).median)
}

func TestPrintable(t *testing.T) {
	assert.Equal(t, byte('A'), printable('A'))
	assert.Equal(t, byte('.'), printable(0xFF))
	assert.Equal(t, byte('.'), printable('\n'))
}

func TestFormatRecords(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{At: at, MOSI: 'a', MISO: 0xFF},
		{At: at, MOSI: 'b', MISO: 'a'},
		{At: at, MOSI: 'c', MISO: 0, Err: errors.New("spi: [x]")},
	}

	out := formatRecords(recs, 2)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 2, "only the newest records")
	assert.Contains(t, lines[0], "62[-] b")
	assert.Contains(t, lines[0], "61[-] a")
	assert.Contains(t, lines[1], "[red]spi: [x[]")
}

func TestFormatLatency_SkipsErrors(t *testing.T) {
	recs := []Record{
		{Took: 10 * time.Microsecond},
		{Took: 30 * time.Microsecond},
		{Took: time.Second, Err: spi.ErrTimeout},
	}
	out := formatLatency(recs)
	assert.Contains(t, out, "n=2")
	assert.Contains(t, out, "[10|20|20|30]")
}

func TestBitNames(t *testing.T) {
	assert.Equal(t, "SPE MSTR SPR0", bitNames(0x51, spcrNames))
	assert.Equal(t, "SPIF SPI2X", bitNames(0x81, spsrNames))
	assert.Equal(t, "", bitNames(0x3E, spsrNames), "unnamed bits are skipped")
}

func TestFormatRegisters(t *testing.T) {
	st := platform.State{
		SPI:    sim.Snapshot{SPCR: 0x51, SPDR: 'Z', Pending: true},
		Role:   spi.Master,
		Config: spi.Config{Rate: spi.Fosc16},
	}
	st.Ports[1] = platform.PortState{DDR: 0xB0}
	st.Interrupts[exti.GICR] = exti.INT0.Mask()
	st.Interrupts[exti.SREG] = 1 << exti.IBit

	out := formatRegisters(st)
	assert.Contains(t, out, "master fosc/16 mode 0 msb")
	assert.Contains(t, out, "SPCR 51  SPE MSTR SPR0")
	assert.Contains(t, out, "SPDR 5A  Z  [red]busy")
	assert.Contains(t, out, "B    B0   00   00")
	assert.Contains(t, out, "GICR 40  INT0")
	assert.Contains(t, out, "I on")
}

func TestFormatLines(t *testing.T) {
	regs := sim.NewInterrupts()
	c := exti.New(regs, gpio.NewModel())
	require.NoError(t, c.Configure(exti.INT2, exti.RisingEdge, false))
	require.NoError(t, c.Enable(exti.INT2))
	regs.Raise(exti.INT0)

	lines := strings.Split(formatLines(c), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], " INT0 PD2 [gray]off[-]"))
	assert.Contains(t, lines[0], "[red]pending")
	assert.Contains(t, lines[2], "INT2 PB2 [green]on[-]  rising")
	assert.NotContains(t, lines[2], "pending")
	assert.Equal(t, " global [gray]off[-]", lines[3])

	c.EnableGlobal()
	assert.Contains(t, formatLines(c), "global [green]on")
}

func TestFormatTriggers(t *testing.T) {
	assert.Equal(t, " no interrupts yet", formatTriggers(nil))

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := formatTriggers(map[string]*util.Trigger{
		"INT2": util.NewTrigger("INT2", 1, at),
		"INT0": util.NewTrigger("INT0", 42, at),
	})
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], " [blue]INT0[-]    42"))
	assert.True(t, strings.HasPrefix(lines[1], " [blue]INT2[-]     1"))
}
