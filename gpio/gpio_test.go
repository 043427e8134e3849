package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_Direction(t *testing.T) {
	m := NewModel()
	assert.Equal(t, Input, m.Direction(PortB, 5), "pins reset to input")

	require.NoError(t, m.SetupPinDirection(PortB, 5, Output))
	assert.Equal(t, Output, m.Direction(PortB, 5))
	ddr, _, _ := m.Registers(PortB)
	assert.Equal(t, uint8(0x20), ddr)

	require.NoError(t, m.SetupPinDirection(PortB, 5, Input))
	assert.Equal(t, Input, m.Direction(PortB, 5))
}

func TestModel_OutputLevel(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.SetupPinDirection(PortA, 0, Output))
	require.NoError(t, m.WritePin(PortA, 0, true))

	high, err := m.ReadPin(PortA, 0)
	require.NoError(t, err)
	assert.True(t, high)

	require.NoError(t, m.WritePin(PortA, 0, false))
	high, err = m.ReadPin(PortA, 0)
	require.NoError(t, err)
	assert.False(t, high)
}

func TestModel_PullUpAndExternalDrive(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.EnablePullUp(PortD, 2, true))
	assert.True(t, m.PullUp(PortD, 2))

	high, _ := m.ReadPin(PortD, 2)
	assert.True(t, high, "floating input with pull-up reads high")

	require.NoError(t, m.Drive(PortD, 2, false))
	high, _ = m.ReadPin(PortD, 2)
	assert.False(t, high, "external driver wins over the pull-up")

	require.NoError(t, m.Release(PortD, 2))
	high, _ = m.ReadPin(PortD, 2)
	assert.True(t, high)

	// Switching to output disables the pull-up reading.
	require.NoError(t, m.SetupPinDirection(PortD, 2, Output))
	assert.False(t, m.PullUp(PortD, 2))
}

func TestModel_InvalidPin(t *testing.T) {
	m := NewModel()
	err := m.SetupPinDirection(PortD, 8, Output)
	assert.True(t, errors.Is(err, ErrInvalidPin))

	_, err = m.ReadPin(Port(4), 0)
	assert.ErrorIs(t, err, ErrInvalidPin)
	assert.Equal(t, Input, m.Direction(Port(9), 0))
}

func TestPort_String(t *testing.T) {
	assert.Equal(t, "PORTB", PortB.String())
	assert.Equal(t, "PORTD", PortD.String())
	assert.Equal(t, "output", Output.String())
}
