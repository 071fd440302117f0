// Package pdu implements the Modbus RTU frame layouts this server
// supports: encoding, decoding, and validation of requests and
// responses for function codes 0x03, 0x04, 0x06 and 0x10, plus the
// exception reply shared by all of them.
//
// Every function here is a pure transformation over a caller-owned
// byte slice; none of them touch a UART, a timer, or any register
// storage.
package pdu

import (
	"fmt"

	"github.com/embeddedmodbus/rtuserver/crc"
)

// FunctionCode identifies the Modbus application-layer operation
// carried by a frame.
type FunctionCode byte

const (
	ReadHoldingRegisters   FunctionCode = 0x03
	ReadInputRegisters     FunctionCode = 0x04
	WriteSingleRegister    FunctionCode = 0x06
	WriteMultipleRegisters FunctionCode = 0x10

	// exceptionFlag is OR-ed into the request function code to mark a
	// reply as an exception response.
	exceptionFlag FunctionCode = 0x80
)

// IsException reports whether fc carries the exception flag.
func (fc FunctionCode) IsException() bool {
	return fc&exceptionFlag != 0
}

// WithException returns fc with the exception flag set.
func (fc FunctionCode) WithException() FunctionCode {
	return fc | exceptionFlag
}

// Describe returns a short human-readable name, used only for log
// messages.
func (fc FunctionCode) Describe() string {
	switch fc &^ exceptionFlag {
	case ReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case ReadInputRegisters:
		return "ReadInputRegisters"
	case WriteSingleRegister:
		return "WriteSingleRegister"
	case WriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		return fmt.Sprintf("FunctionCode(0x%02X)", byte(fc))
	}
}

// ExceptionCode is the one-byte payload of an exception reply.
type ExceptionCode byte

const (
	IllegalFunction    ExceptionCode = 0x01
	IllegalDataAddress ExceptionCode = 0x02
	IllegalDataValue   ExceptionCode = 0x03
)

const (
	// MaxReadQuantity is the largest register count a 0x03/0x04
	// request may ask for.
	MaxReadQuantity = 125
	// MaxWriteQuantity is the largest register count a 0x10
	// request may carry.
	MaxWriteQuantity = 123

	// MinFrameLen is the smallest legal frame: address + function
	// code + CRC.
	MinFrameLen = 4
	// MaxFrameLen is the size of the shared wire buffer.
	MaxFrameLen = 256

	readRequestLen        = 8
	writeSingleRequestLen = 8
	writeMultiMinLen      = 11
)

// ReadRequest is the decoded body of a 0x03/0x04 request.
type ReadRequest struct {
	Start    uint16
	Quantity uint16
}

// DecodeReadRequest parses a Read Holding/Input Registers request
// body. frame must be the full ADU including address and CRC.
func DecodeReadRequest(frame []byte) (ReadRequest, error) {
	if len(frame) != readRequestLen {
		return ReadRequest{}, ErrBadLength
	}
	req := ReadRequest{
		Start:    uint16(frame[2])<<8 | uint16(frame[3]),
		Quantity: uint16(frame[4])<<8 | uint16(frame[5]),
	}
	return req, nil
}

// EncodeReadResponse writes a complete Read Holding/Input Registers
// reply into buf (which must have capacity for the full frame) and
// returns its length. regs is already in wire byte order
// (2 bytes per register, big-endian); the server packs it from the
// register values its callback filled in.
func EncodeReadResponse(buf []byte, address byte, fc FunctionCode, regs []byte) int {
	buf[0] = address
	buf[1] = byte(fc)
	buf[2] = byte(len(regs))
	copy(buf[3:], regs)
	body := buf[:3+len(regs)]
	return len(crc.Append(body, body))
}

// WriteSingleRequest is the decoded body of a 0x06 request.
type WriteSingleRequest struct {
	Address uint16
	Value   uint16
}

// DecodeWriteSingleRequest parses a Write Single Register request.
func DecodeWriteSingleRequest(frame []byte) (WriteSingleRequest, error) {
	if len(frame) != writeSingleRequestLen {
		return WriteSingleRequest{}, ErrBadLength
	}
	return WriteSingleRequest{
		Address: uint16(frame[2])<<8 | uint16(frame[3]),
		Value:   uint16(frame[4])<<8 | uint16(frame[5]),
	}, nil
}

// WriteMultipleRequest is the decoded body of a 0x10 request.
type WriteMultipleRequest struct {
	Start    uint16
	Quantity uint16
	// Values holds raw register bytes (2 per register, big-endian),
	// a view into the original frame.
	Values []byte
}

// DecodeWriteMultipleRequest parses a Write Multiple Registers
// request, including the embedded byte-count cross-check against the
// declared quantity.
func DecodeWriteMultipleRequest(frame []byte) (WriteMultipleRequest, error) {
	if len(frame) < writeMultiMinLen {
		return WriteMultipleRequest{}, ErrBadLength
	}
	qty := uint16(frame[4])<<8 | uint16(frame[5])
	byteCount := int(frame[6])
	if byteCount != int(qty)*2 {
		return WriteMultipleRequest{}, ErrByteCountMismatch
	}
	if len(frame) != 9+byteCount {
		return WriteMultipleRequest{}, ErrBadLength
	}
	return WriteMultipleRequest{
		Start:    uint16(frame[2])<<8 | uint16(frame[3]),
		Quantity: qty,
		Values:   frame[7 : 7+byteCount],
	}, nil
}

// EncodeWriteMultipleResponse composes the Write Multiple Registers
// reply in place: address, function code, start and quantity are
// copied from the request; only the trailing CRC is recomputed. There
// is no EncodeWriteSingleResponse because the 0x06 reply is the
// request itself, already carrying a valid CRC.
func EncodeWriteMultipleResponse(buf []byte, address byte, start, quantity uint16) int {
	buf[0] = address
	buf[1] = byte(WriteMultipleRegisters)
	buf[2] = byte(start >> 8)
	buf[3] = byte(start)
	buf[4] = byte(quantity >> 8)
	buf[5] = byte(quantity)
	body := buf[:6]
	return len(crc.Append(body, body))
}

// EncodeException composes a complete exception reply for fc/code at
// the given server address and returns its length (always 5).
func EncodeException(buf []byte, address byte, fc FunctionCode, code ExceptionCode) int {
	buf[0] = address
	buf[1] = byte(fc.WithException())
	buf[2] = byte(code)
	body := buf[:3]
	return len(crc.Append(body, body))
}
