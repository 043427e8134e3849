package exti_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/avrhal/exti"
	"lautenbacher.net/avrhal/gpio"
	"lautenbacher.net/avrhal/sim"
)

func setup() (*exti.Controller, *sim.Interrupts, *gpio.Model) {
	regs := sim.NewInterrupts()
	pins := gpio.NewModel()
	c := exti.New(regs, pins)
	regs.Vector(c.Dispatch)
	return c, regs, pins
}

func TestEnableDisable(t *testing.T) {
	c, regs, _ := setup()

	require.NoError(t, c.Enable(exti.INT0))
	require.NoError(t, c.Enable(exti.INT0))
	require.NoError(t, c.Enable(exti.INT2))
	assert.Equal(t, uint8(0x60), regs.Get(exti.GICR))
	assert.True(t, c.Enabled(exti.INT2))

	require.NoError(t, c.Disable(exti.INT0))
	assert.Equal(t, uint8(0x20), regs.Get(exti.GICR))
	assert.False(t, c.Enabled(exti.INT0))

	assert.ErrorIs(t, c.Enable(exti.Line(3)), exti.ErrInvalidLine)
	assert.ErrorIs(t, c.Disable(exti.Line(3)), exti.ErrInvalidLine)
}

func TestConfigure_SenseBits(t *testing.T) {
	c, regs, _ := setup()
	regs.Set(exti.MCUCR, 0xF0)

	require.NoError(t, c.Configure(exti.INT0, exti.RisingEdge, false))
	require.NoError(t, c.Configure(exti.INT1, exti.AnyChange, false))
	assert.Equal(t, uint8(0xF7), regs.Get(exti.MCUCR), "upper MCUCR bits kept")
	assert.Equal(t, exti.RisingEdge, c.Sense(exti.INT0))
	assert.Equal(t, exti.AnyChange, c.Sense(exti.INT1))

	require.NoError(t, c.Configure(exti.INT0, exti.LowLevel, false))
	assert.Equal(t, exti.LowLevel, c.Sense(exti.INT0))
}

func TestConfigure_INT2EdgeOnly(t *testing.T) {
	c, regs, _ := setup()

	require.NoError(t, c.Configure(exti.INT2, exti.RisingEdge, false))
	assert.Equal(t, uint8(1<<exti.ISC2), regs.Get(exti.MCUCSR))
	assert.Equal(t, exti.RisingEdge, c.Sense(exti.INT2))

	require.NoError(t, c.Configure(exti.INT2, exti.FallingEdge, false))
	assert.Zero(t, regs.Get(exti.MCUCSR))

	assert.ErrorIs(t, c.Configure(exti.INT2, exti.LowLevel, false), exti.ErrUnsupportedSense)
	assert.ErrorIs(t, c.Configure(exti.INT2, exti.AnyChange, false), exti.ErrUnsupportedSense)
	assert.ErrorIs(t, c.Configure(exti.INT0, exti.Sense(4), false), exti.ErrUnsupportedSense)
}

func TestConfigure_PinInputWithPullUp(t *testing.T) {
	c, _, pins := setup()
	port, pin := exti.INT1.Pin()
	require.NoError(t, pins.SetupPinDirection(port, pin, gpio.Output))

	require.NoError(t, c.Configure(exti.INT1, exti.FallingEdge, true))
	assert.Equal(t, gpio.Input, pins.Direction(port, pin))
	assert.True(t, pins.PullUp(port, pin))

	high, err := pins.ReadPin(port, pin)
	require.NoError(t, err)
	assert.True(t, high, "pull-up holds an open line high")
}

func TestDispatchNeedsLineAndGlobalEnable(t *testing.T) {
	c, regs, _ := setup()
	calls := 0
	c.Handle(exti.INT0, func() { calls++ })

	regs.Raise(exti.INT0)
	assert.Zero(t, calls)
	assert.True(t, c.Pending(exti.INT0), "flag stays set while masked")

	require.NoError(t, c.Enable(exti.INT0))
	regs.Raise(exti.INT0)
	assert.Zero(t, calls, "I bit still clear")

	c.EnableGlobal()
	assert.True(t, c.GlobalEnabled())
	regs.Raise(exti.INT0)
	assert.Equal(t, 1, calls)

	c.DisableGlobal()
	regs.Raise(exti.INT0)
	assert.Equal(t, 1, calls)
}

func TestPendingAndClear(t *testing.T) {
	c, regs, _ := setup()
	regs.Raise(exti.INT1)
	regs.Raise(exti.INT2)

	assert.True(t, c.Pending(exti.INT1))
	c.Clear(exti.INT1)
	assert.False(t, c.Pending(exti.INT1))
	assert.True(t, c.Pending(exti.INT2), "clearing one flag leaves the others")
}

func TestHandleNilRestoresEmpty(t *testing.T) {
	c, _, _ := setup()
	c.Handle(exti.INT2, func() { t.Fatal("replaced handler ran") })
	c.Handle(exti.INT2, nil)
	c.Dispatch(exti.INT2)
	c.Dispatch(exti.Line(7))
}

func TestLineInfo(t *testing.T) {
	assert.Equal(t, uint8(1<<6), exti.INT0.Mask())
	assert.Equal(t, uint8(1<<7), exti.INT1.Mask())
	assert.Equal(t, uint8(1<<5), exti.INT2.Mask())
	assert.Zero(t, exti.Line(3).Mask())

	port, pin := exti.INT2.Pin()
	assert.Equal(t, gpio.PortB, port)
	assert.Equal(t, gpio.Pin(2), pin)

	assert.NotPanics(t, func() { port, pin = exti.Line(3).Pin() })
	assert.Equal(t, gpio.PortA, port)
	assert.Equal(t, gpio.Pin(0), pin)

	assert.Equal(t, "INT1", exti.INT1.String())
	assert.Equal(t, "Line(4)", exti.Line(4).String())
	assert.Equal(t, "falling", exti.FallingEdge.String())
}
