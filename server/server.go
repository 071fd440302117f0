// Package server implements the Modbus application-layer
// request/response state machine: on frame availability it validates
// CRC and address, dispatches the function code, invokes the
// register callback (which may report busy), composes the reply
// (normal or exception), and drives it out through its transport.
//
// Server never touches a UART or a timer directly; it is bound to a
// transport pair (typically a framer.Framer's ReadPDU/WritePDU) so it
// can be tested against a fake transport in isolation.
package server

import (
	"errors"

	"github.com/embeddedmodbus/rtuserver/common"
	"github.com/embeddedmodbus/rtuserver/crc"
	"github.com/embeddedmodbus/rtuserver/host"
	"github.com/embeddedmodbus/rtuserver/pdu"
	"go.uber.org/zap"
)

// Phase is one state of the application-level request/response
// machine.
type Phase int

const (
	Idle Phase = iota
	ProcessingRequest
	SendReply
)

const bufferSize = 256

// Transport is the pair of functions the server consumes complete
// inbound frames from and emits complete outbound frames through.
// Both fields are required. In the integrated library these are
// bound to a framer.Framer's ReadPDU and WritePDU methods, whose
// signatures this type matches exactly so no adapter is needed.
type Transport struct {
	// ReadFrame returns a complete inbound frame's length, or 0 if
	// none is ready yet.
	ReadFrame func(buf []byte) (int, error)
	// WriteFrame offers a complete outbound frame. Its error
	// convention matches framer.Framer.WritePDU: nil means sent,
	// common.ErrAgain means call again with the same arguments,
	// anything else is a transport error.
	WriteFrame func(buf []byte) error
}

// Server is the application-level request/response state machine
// described in the package doc.
type Server struct {
	logger    *zap.Logger
	address   byte
	transport Transport
	callbacks host.Registers

	phase     Phase
	buf       [bufferSize]byte
	frameLen  int
	broadcast bool

	// regScratch backs the register slices handed to callbacks, so
	// handing registers to a callback allocates nothing. MaxReadQuantity
	// is the larger of the two quantity limits.
	regScratch [pdu.MaxReadQuantity]uint16
}

// New returns an unconfigured Server. Configure must be called before
// Poll.
func New() *Server {
	return &Server{logger: zap.NewNop()}
}

// Configure binds addr, the transport pair, and the register
// callbacks. Any callback slot may be nil; the corresponding function
// code then replies with exception IllegalFunction.
func (s *Server) Configure(logger *zap.Logger, addr byte, transport Transport, callbacks host.Registers) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == 0 {
		logger.Error("invalid server address", zap.Uint8("address", addr))
		return common.ErrInvalidArgument
	}
	if transport.ReadFrame == nil || transport.WriteFrame == nil {
		logger.Error("transport is missing a required function")
		return common.ErrBadHandle
	}

	s.logger = logger
	s.address = addr
	s.transport = transport
	s.callbacks = callbacks
	s.phase = Idle
	s.frameLen = 0
	s.broadcast = false
	return nil
}

// Poll is the server's single entry point: a non-blocking, idempotent
// pump. It returns nil when there is nothing left to do (or a
// complete cycle just finished), common.ErrAgain when the caller
// should poll again soon, or a transport/host error.
func (s *Server) Poll() error {
	switch s.phase {
	case Idle:
		return s.acceptFrame()
	case ProcessingRequest:
		return s.processRequest()
	case SendReply:
		return s.emitReply()
	default:
		return nil
	}
}

func (s *Server) acceptFrame() error {
	n, err := s.transport.ReadFrame(s.buf[:])
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if n < pdu.MinFrameLen {
		s.logger.Debug("frame shorter than minimum", zap.Int("length", n), common.WireFrame(s.buf[:n]))
		return common.ErrBadMessage
	}
	s.logger.Debug("WireFrame", common.WireFrame(s.buf[:n]))
	if !crc.Validate(s.buf[:n]) {
		s.logger.Debug("frame failed CRC validation", common.WireFrame(s.buf[:n]))
		return common.ErrBadMessage
	}

	addr := s.buf[0]
	if addr != s.address && addr != 0 {
		s.logger.Debug("dropping frame for other address", zap.Uint8("frameAddress", addr))
		return nil
	}

	s.frameLen = n
	s.broadcast = addr == 0
	s.phase = ProcessingRequest
	return s.processRequest()
}

func (s *Server) processRequest() error {
	fc := pdu.FunctionCode(s.buf[1])
	var replyLen int
	var busy bool
	var err error

	switch fc {
	case pdu.ReadHoldingRegisters:
		replyLen, busy, err = s.handleRead(fc, s.callbacks.ReadHoldingRegisters)
	case pdu.ReadInputRegisters:
		replyLen, busy, err = s.handleRead(fc, s.callbacks.ReadInputRegisters)
	case pdu.WriteSingleRegister:
		replyLen, busy, err = s.handleWriteSingle()
	case pdu.WriteMultipleRegisters:
		replyLen, busy, err = s.handleWriteMultiple()
	default:
		s.logger.Debug("unsupported function code", zap.String("fc", fc.Describe()))
		replyLen = pdu.EncodeException(s.buf[:], s.address, fc, pdu.IllegalFunction)
	}
	if err != nil {
		return err
	}
	if busy {
		return common.ErrAgain
	}

	s.frameLen = replyLen
	if s.broadcast {
		s.logger.Debug("suppressing reply for broadcast request", common.WireFrame(s.buf[:s.frameLen]))
		s.reset()
		return nil
	}
	s.phase = SendReply
	return s.emitReply()
}

// handleRead validates and dispatches a 0x03/0x04 request. It returns
// the composed reply length, whether the callback reported busy, and
// any error that should abort the poll cycle entirely (transport or
// host errors never reach here; callback data errors become
// exceptions, not Go errors).
//
// In every handler the callback slot is checked before the frame's
// length or ranges: a function code the host never registered is
// IllegalFunction no matter how the request is shaped.
func (s *Server) handleRead(fc pdu.FunctionCode, cb host.RegisterCallback) (replyLen int, busy bool, err error) {
	if cb == nil {
		return pdu.EncodeException(s.buf[:], s.address, fc, pdu.IllegalFunction), false, nil
	}
	req, decodeErr := pdu.DecodeReadRequest(s.buf[:s.frameLen])
	if decodeErr != nil || req.Quantity > pdu.MaxReadQuantity {
		return pdu.EncodeException(s.buf[:], s.address, fc, pdu.IllegalDataValue), false, nil
	}

	regs := s.regScratch[:req.Quantity]
	result := cb(regs, req.Start)
	if result == 0 {
		return 0, true, nil
	}
	if result != 2*int(req.Quantity) {
		return pdu.EncodeException(s.buf[:], s.address, fc, pdu.IllegalDataAddress), false, nil
	}

	// The register data lands at buf[3:] in the reply, overwriting the
	// request body, which has already been decoded.
	regBytes := s.buf[3 : 3+2*len(regs)]
	for i, v := range regs {
		regBytes[2*i] = byte(v >> 8)
		regBytes[2*i+1] = byte(v)
	}
	return pdu.EncodeReadResponse(s.buf[:], s.address, fc, regBytes), false, nil
}

func (s *Server) handleWriteSingle() (replyLen int, busy bool, err error) {
	if s.callbacks.WriteRegisters == nil {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteSingleRegister, pdu.IllegalFunction), false, nil
	}
	req, decodeErr := pdu.DecodeWriteSingleRequest(s.buf[:s.frameLen])
	if decodeErr != nil {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteSingleRegister, pdu.IllegalDataValue), false, nil
	}

	s.regScratch[0] = req.Value
	result := s.callbacks.WriteRegisters(s.regScratch[:1], req.Address)
	if result == 0 {
		return 0, true, nil
	}
	if result != 1 {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteSingleRegister, pdu.IllegalDataAddress), false, nil
	}
	// The reply is byte-identical to the request, which is already
	// sitting in s.buf with a valid CRC, so there is nothing to
	// recompose.
	return s.frameLen, false, nil
}

func (s *Server) handleWriteMultiple() (replyLen int, busy bool, err error) {
	if s.callbacks.WriteRegisters == nil {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteMultipleRegisters, pdu.IllegalFunction), false, nil
	}
	req, decodeErr := pdu.DecodeWriteMultipleRequest(s.buf[:s.frameLen])
	if decodeErr != nil || req.Quantity > pdu.MaxWriteQuantity {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteMultipleRegisters, pdu.IllegalDataValue), false, nil
	}

	regs := s.regScratch[:req.Quantity]
	for i := range regs {
		regs[i] = uint16(req.Values[2*i])<<8 | uint16(req.Values[2*i+1])
	}
	result := s.callbacks.WriteRegisters(regs, req.Start)
	if result == 0 {
		return 0, true, nil
	}
	if result != int(req.Quantity) {
		return pdu.EncodeException(s.buf[:], s.address, pdu.WriteMultipleRegisters, pdu.IllegalDataAddress), false, nil
	}
	return pdu.EncodeWriteMultipleResponse(s.buf[:], s.address, req.Start, req.Quantity), false, nil
}

func (s *Server) emitReply() error {
	s.logger.Debug("WireFrame", common.WireFrame(s.buf[:s.frameLen]))
	err := s.transport.WriteFrame(s.buf[:s.frameLen])
	switch {
	case err == nil:
		s.reset()
		return nil
	case errors.Is(err, common.ErrAgain):
		s.phase = SendReply
		return common.ErrAgain
	default:
		s.reset()
		return err
	}
}

func (s *Server) reset() {
	s.phase = Idle
	s.frameLen = 0
	s.broadcast = false
}

// CurrentPhase reports the server's current state, for diagnostics
// and tests.
func (s *Server) CurrentPhase() Phase {
	return s.phase
}
