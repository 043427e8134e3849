package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/avrhal/gpio"
	"lautenbacher.net/avrhal/sim"
	"lautenbacher.net/avrhal/spi"
)

func echoBus(t *testing.T) *spi.Bus {
	t.Helper()
	regs := sim.NewSPI()
	regs.Attach(sim.NewEchoPeer())
	bus := spi.New(regs, gpio.NewModel())
	require.NoError(t, bus.Init(spi.Master, spi.Config{}))
	return bus
}

func TestTap_Records(t *testing.T) {
	tap := NewTap(echoBus(t))

	assert.Equal(t, byte(0xFF), tap.Exchange('a'))
	in, err := tap.ExchangeContext(context.Background(), 'b')
	require.NoError(t, err)
	assert.Equal(t, byte('a'), in)

	hist := tap.History()
	require.Len(t, hist, 2)
	assert.Equal(t, Record{MOSI: 'a', MISO: 0xFF}, Record{MOSI: hist[0].MOSI, MISO: hist[0].MISO})
	assert.Equal(t, byte('b'), hist[1].MOSI)

	assert.True(t, tap.Updates().HasPending())
	assert.Equal(t, byte('b'), tap.Updates().Value().MOSI)
}

func TestTap_RecordsErrors(t *testing.T) {
	// A slave without a master never completes.
	bus := spi.New(sim.NewSPI(), gpio.NewModel())
	require.NoError(t, bus.Init(spi.Slave, spi.Config{}))
	tap := NewTap(bus)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tap.ExchangeContext(ctx, 'x')
	assert.ErrorIs(t, err, spi.ErrTimeout)
	assert.ErrorIs(t, tap.History()[0].Err, spi.ErrTimeout)
}

func TestTap_HistoryBounded(t *testing.T) {
	tap := NewTap(echoBus(t))
	for i := 0; i < maxHistory+10; i++ {
		tap.Exchange(byte(i))
	}
	hist := tap.History()
	assert.Len(t, hist, maxHistory)
	assert.Equal(t, byte(10), hist[0].MOSI)
}
