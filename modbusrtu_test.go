package rtuserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/embeddedmodbus/rtuserver/framer"
	"github.com/embeddedmodbus/rtuserver/host"
	"github.com/embeddedmodbus/rtuserver/server"
)

// fakeUART is a host.UART test double shared by the device-level
// wiring tests: it records armed timers and echoes writes as fully
// accepted unless writeAccept says otherwise.
type fakeUART struct {
	timers        []time.Duration
	written       []byte
	writeAccept   func(b []byte) (int, error)
	frameReceived int
}

func (h *fakeUART) StartTimer(d time.Duration) { h.timers = append(h.timers, d) }

func (h *fakeUART) Write(b []byte) (int, error) {
	h.written = append(h.written, b...)
	if h.writeAccept != nil {
		return h.writeAccept(b)
	}
	return len(b), nil
}

func (h *fakeUART) FrameReceived() { h.frameReceived++ }

func newDevice(t *testing.T, uart host.UART, regs host.Registers) *Device {
	t.Helper()
	d, err := NewDevice(zaptest.NewLogger(t), 0x01, 9600, uart, regs)
	require.NoError(t, err)
	require.NoError(t, d.Timeout()) // Init -> Idle
	return d
}

// End-to-end S1: a full read-holding exchange driven only through
// Device's three public entry points.
func TestDeviceEndToEndReadHolding(t *testing.T) {
	uart := &fakeUART{}
	regs := host.Registers{
		ReadHoldingRegisters: func(out []uint16, start uint16) int {
			out[0], out[1] = 0x0001, 0x0203
			return 2 * len(out)
		},
	}
	d := newDevice(t, uart, regs)

	request := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	for _, b := range request {
		_ = d.Receive(b)
	}
	require.NoError(t, d.Timeout()) // Receiving -> ControlAndWait
	require.NoError(t, d.Timeout()) // ControlAndWait -> ProcessRxFrame
	assert.Equal(t, 1, uart.frameReceived)

	require.NoError(t, d.Poll())
	assert.Equal(t, []byte{0x01, 0x03, 0x04, 0x00, 0x01, 0x02, 0x03, 0xEA, 0x92}, uart.written)
	assert.Equal(t, server.Idle, d.ServerPhase())
	assert.Equal(t, framer.WaitForTxComplete, d.FramerPhase())
}

func TestDeviceRejectsBadAddressAtConstruction(t *testing.T) {
	_, err := NewDevice(zaptest.NewLogger(t), 0, 9600, &fakeUART{}, host.Registers{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeviceRejectsNilUARTAtConstruction(t *testing.T) {
	_, err := NewDevice(zaptest.NewLogger(t), 1, 9600, nil, host.Registers{})
	assert.ErrorIs(t, err, ErrBadHandle)
}

// A host.Write failure that isn't one of the library's own sentinels
// surfaces through Device wrapped as ErrHostCallback, while the
// library's own sentinels (ErrAgain here) pass through unwrapped.
func TestDeviceWrapsForeignHostErrors(t *testing.T) {
	uart := &fakeUART{}
	boom := assert.AnError
	uart.writeAccept = func(b []byte) (int, error) { return 0, boom }
	regs := host.Registers{
		ReadHoldingRegisters: func(out []uint16, start uint16) int {
			return 2 * len(out)
		},
	}
	d := newDevice(t, uart, regs)

	request := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	for _, b := range request {
		_ = d.Receive(b)
	}
	require.NoError(t, d.Timeout())
	require.NoError(t, d.Timeout())

	err := d.Poll()
	assert.ErrorIs(t, err, ErrHostCallback)
	assert.ErrorIs(t, err, boom)
}

func TestDeviceBusyCallbackReturnsAgain(t *testing.T) {
	uart := &fakeUART{}
	calls := 0
	regs := host.Registers{
		ReadHoldingRegisters: func(out []uint16, start uint16) int {
			calls++
			if calls == 1 {
				return 0
			}
			return 2 * len(out)
		},
	}
	d := newDevice(t, uart, regs)

	request := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	for _, b := range request {
		_ = d.Receive(b)
	}
	require.NoError(t, d.Timeout())
	require.NoError(t, d.Timeout())

	err := d.Poll()
	assert.ErrorIs(t, err, ErrAgain)
	require.NoError(t, d.Poll())
	assert.Equal(t, 2, calls)
}
