package rtuserver

import (
	"go.uber.org/zap"

	"github.com/embeddedmodbus/rtuserver/framer"
	"github.com/embeddedmodbus/rtuserver/host"
	"github.com/embeddedmodbus/rtuserver/server"
)

// Device bundles one framer.Framer and one server.Server, wiring the
// server's transport to the framer automatically. It is the
// convenience entry point the package exists to provide; everything
// it does is expressible directly against framer.Framer and
// server.Server for callers that want to wire the layers by hand.
//
// Device owns no goroutine and performs no I/O; every byte still
// flows through the host.UART it was configured with. The three
// methods below are the only host-originated entry points: a UART
// receive interrupt calls Receive, a timer
// elapsed interrupt calls Timeout, and a main polling context calls
// Poll. None of Device's methods may be called re-entrantly for the
// same instance - the caller serializes them, exactly as the library
// as a whole requires.
type Device struct {
	framer *framer.Framer
	server *server.Server
}

// NewDevice configures and wires a Device: addr and baud bind the
// framer (see framer.Framer.Configure for the supported baud table),
// uart is the host UART/timer primitive, and regs is the register
// callback set consumed by the application server. Any of regs'
// fields may be left nil; the corresponding function code then
// replies with the IllegalFunction exception.
func NewDevice(logger *zap.Logger, addr byte, baud int, uart host.UART, regs host.Registers) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f := framer.New()
	if err := f.Configure(logger, addr, baud, uart); err != nil {
		return nil, err
	}

	s := server.New()
	transport := server.Transport{
		ReadFrame:  f.ReadPDU,
		WriteFrame: f.WritePDU,
	}
	if err := s.Configure(logger, addr, transport, regs); err != nil {
		return nil, err
	}

	return &Device{framer: f, server: s}, nil
}

// Receive delivers one inbound UART byte to the device's framer.
func (d *Device) Receive(b byte) error {
	return classifyHostError(d.framer.Receive(b))
}

// Timeout delivers the armed timer's expiration to the device's framer.
func (d *Device) Timeout() error {
	return classifyHostError(d.framer.Timeout())
}

// Poll drives the application server's request/response pump. See
// server.Server.Poll for the full return-value contract.
func (d *Device) Poll() error {
	return classifyHostError(d.server.Poll())
}

// FramerPhase reports the framer's current state, for diagnostics.
func (d *Device) FramerPhase() framer.Phase {
	return d.framer.CurrentPhase()
}

// ServerPhase reports the application server's current state, for
// diagnostics.
func (d *Device) ServerPhase() server.Phase {
	return d.server.CurrentPhase()
}
