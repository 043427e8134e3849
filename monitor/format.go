package monitor

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/rivo/tview"
	"golang.org/x/exp/maps"

	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/gpio"
	"lautenbacher.net/avrhal/platform"
	"lautenbacher.net/avrhal/spi"
	"lautenbacher.net/avrhal/util"
)

type latencyStats struct {
	min    int
	max    int
	mean   float64
	median float64
	stdDev float64
}

func calculateStats(data []int) latencyStats {
	if len(data) == 0 {
		return latencyStats{}
	}

	var sum int
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	mean := float64(sum) / float64(len(data))

	sort.Ints(data)
	var median float64
	mid := len(data) / 2
	if len(data)%2 == 0 {
		median = float64(data[mid-1]+data[mid]) / 2.0
	} else {
		median = float64(data[mid])
	}

	var sumOfSquares float64
	for _, v := range data {
		sumOfSquares += (float64(v) - mean) * (float64(v) - mean)
	}

	return latencyStats{
		min:    lo,
		max:    hi,
		mean:   mean,
		median: median,
		stdDev: math.Sqrt(sumOfSquares / float64(len(data))),
	}
}

// printable renders b as a character, or a dot.
func printable(b byte) byte {
	if b >= 0x20 && b < 0x7F {
		return b
	}
	return '.'
}

// formatRecords shows the newest n records, newest last.
func formatRecords(recs []Record, n int) string {
	if len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	var buf strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&buf, " %s  [yellow]%02X[-] %c  ->  [blue]%02X[-] %c",
			r.At.Format("15:04:05.000"), r.MOSI, printable(r.MOSI), r.MISO, printable(r.MISO))
		if r.Err != nil {
			buf.WriteString("  [red]" + tview.Escape(r.Err.Error()) + "[-]")
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// formatLatency summarises exchange durations in microseconds.
func formatLatency(recs []Record) string {
	data := make([]int, 0, len(recs))
	for _, r := range recs {
		if r.Err == nil {
			data = append(data, int(r.Took.Microseconds()))
		}
	}
	s := calculateStats(data)
	return fmt.Sprintf(" [yellow]µs[-] n=%d  [min|mean|median|max] [%d|%.0f|%.0f|%d]  stddev %.1f",
		len(data), s.min, s.mean, s.median, s.max, s.stdDev)
}

// bitNames lists the names of the set bits, MSB first. names is indexed by
// bit position; empty names are skipped.
func bitNames(v uint8, names [8]string) string {
	var set []string
	for bit := 7; bit >= 0; bit-- {
		if v&(1<<bit) != 0 && names[bit] != "" {
			set = append(set, names[bit])
		}
	}
	return strings.Join(set, " ")
}

var (
	spcrNames = [8]string{"SPR0", "SPR1", "CPHA", "CPOL", "MSTR", "DORD", "SPE", "SPIE"}
	spsrNames = [8]string{spi.SPI2X: "SPI2X", spi.WCOL: "WCOL", spi.SPIF: "SPIF"}
	gicrNames = [8]string{5: "INT2", 6: "INT0", 7: "INT1"}
)

// formatRegisters renders the register pane for an inspectable platform.
func formatRegisters(st platform.State) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, " [yellow]SPI[-] %s %s mode %d %s\n", st.Role, st.Config.Rate, st.Config.Mode(), st.Config.Order)
	fmt.Fprintf(&buf, " SPCR %02X  %s\n", st.SPI.SPCR, bitNames(st.SPI.SPCR, spcrNames))
	fmt.Fprintf(&buf, " SPSR %02X  %s\n", st.SPI.SPSR, bitNames(st.SPI.SPSR, spsrNames))
	fmt.Fprintf(&buf, " SPDR %02X  %c", st.SPI.SPDR, printable(st.SPI.SPDR))
	if st.SPI.Pending {
		buf.WriteString("  [red]busy[-]")
	}
	buf.WriteString("\n\n [yellow]PORT  DDR  PORT PIN[-]\n")
	for p := gpio.PortA; p < gpio.NumPorts; p++ {
		ps := st.Ports[p]
		fmt.Fprintf(&buf, "  %c    %02X   %02X   %02X\n", 'A'+byte(p), ps.DDR, ps.PORT, ps.PIN)
	}
	irq := st.Interrupts
	fmt.Fprintf(&buf, "\n [yellow]EXTI[-]\n GICR %02X  %s\n", irq[exti.GICR], bitNames(irq[exti.GICR], gicrNames))
	fmt.Fprintf(&buf, " GIFR %02X  %s\n", irq[exti.GIFR], bitNames(irq[exti.GIFR], gicrNames))
	fmt.Fprintf(&buf, " MCUCR %02X MCUCSR %02X\n", irq[exti.MCUCR], irq[exti.MCUCSR])
	global := "off"
	if irq[exti.SREG]&(1<<exti.IBit) != 0 {
		global = "on"
	}
	fmt.Fprintf(&buf, " SREG %02X  I %s", irq[exti.SREG], global)
	return buf.String()
}

// formatLines shows how each interrupt line is set up.
func formatLines(c *exti.Controller) string {
	var buf strings.Builder
	for line := exti.INT0; line < exti.NumLines; line++ {
		port, pin := line.Pin()
		state := "[gray]off[-]"
		if c.Enabled(line) {
			state = "[green]on[-] "
		}
		fmt.Fprintf(&buf, " %s P%c%d %s %-10s", line, 'A'+byte(port), pin, state, c.Sense(line))
		if c.Pending(line) {
			buf.WriteString(" [red]pending[-]")
		}
		buf.WriteByte('\n')
	}
	global := "[gray]off[-]"
	if c.GlobalEnabled() {
		global = "[green]on[-]"
	}
	fmt.Fprintf(&buf, " global %s", global)
	return buf.String()
}

// formatTriggers lists the latest trigger of each line, by name.
func formatTriggers(triggers map[string]*util.Trigger) string {
	if len(triggers) == 0 {
		return " no interrupts yet"
	}
	var buf strings.Builder
	ids := maps.Keys(triggers)
	slices.Sort(ids)
	for _, id := range ids {
		t := triggers[id]
		fmt.Fprintf(&buf, " [blue]%s[-] %5d  last %s\n", id, t.Count, t.Timestamp.Format("15:04:05.000"))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
