// Package common holds the sentinel errors and logging helpers shared
// by the framer and server packages.
package common

import "errors"

var (
	// ErrInvalidArgument marks malformed configuration or API
	// parameters: a bad server address, an unsupported baud rate, a
	// read_pdu output buffer no larger than the pending frame.
	ErrInvalidArgument = errors.New("modbus: invalid argument")

	// ErrBadHandle marks a required callback slot that was left nil
	// at configuration time.
	ErrBadHandle = errors.New("modbus: missing required callback")

	// ErrBadMessage marks a frame that is too short or whose CRC
	// does not match.
	ErrBadMessage = errors.New("modbus: malformed frame")

	// ErrBusy marks an operation that cannot be started in the
	// caller's current phase.
	ErrBusy = errors.New("modbus: busy")

	// ErrAgain tells the caller to repeat the same call: progress
	// was made but work remains (a partial UART write, a callback
	// that reported busy).
	ErrAgain = errors.New("modbus: call again")

	// ErrNoBufferSpace marks an inbound byte that would overflow the
	// 256-byte frame buffer.
	ErrNoBufferSpace = errors.New("modbus: no buffer space")

	// ErrTimeout marks an outbound transmission that did not
	// complete within a character-time of silence; the frame is
	// lost and will not be retried automatically.
	ErrTimeout = errors.New("modbus: transmission timed out")
)
