// Package rtuserver is an embeddable Modbus RTU server: it terminates
// application-layer requests carried over a serial link, dispatches
// register accesses to caller-supplied callbacks, and emits
// correctly-framed replies. It performs no I/O of its own; see host.UART
// and host.Registers for the narrow surface it consumes from its embedder.
package rtuserver

import (
	"errors"
	"fmt"

	"github.com/embeddedmodbus/rtuserver/common"
)

// Re-exported so callers of the top-level Device type don't need to
// import package common just to call errors.Is against them.
var (
	ErrInvalidArgument = common.ErrInvalidArgument
	ErrBadHandle       = common.ErrBadHandle
	ErrBadMessage      = common.ErrBadMessage
	ErrBusy            = common.ErrBusy
	ErrAgain           = common.ErrAgain
	ErrNoBufferSpace   = common.ErrNoBufferSpace
	ErrTimeout         = common.ErrTimeout
)

// ErrHostCallback marks a negative/error return from a host-provided
// UART primitive (Write, StartTimer) surfacing out of Device.Receive,
// Device.Timeout or Device.Poll. The underlying error is preserved so
// errors.Is/errors.As still reach it.
var ErrHostCallback = errors.New("rtuserver: host callback failed")

// classifyHostError leaves the library's own sentinel errors untouched
// (so errors.Is(err, rtuserver.ErrAgain) etc. keeps working through
// Device) and wraps anything else - a raw error a host.UART.Write
// implementation returned - as ErrHostCallback.
func classifyHostError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrInvalidArgument),
		errors.Is(err, common.ErrBadHandle),
		errors.Is(err, common.ErrBadMessage),
		errors.Is(err, common.ErrBusy),
		errors.Is(err, common.ErrAgain),
		errors.Is(err, common.ErrNoBufferSpace),
		errors.Is(err, common.ErrTimeout):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrHostCallback, err)
	}
}
