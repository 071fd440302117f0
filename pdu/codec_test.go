package pdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReadRequest(t *testing.T) {
	// [01 03 00 00 00 02 C4 0B]
	frame := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	req, err := DecodeReadRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), req.Start)
	assert.Equal(t, uint16(2), req.Quantity)
}

func TestDecodeReadRequestBadLength(t *testing.T) {
	_, err := DecodeReadRequest([]byte{0x01, 0x03, 0x00})
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestEncodeReadResponse(t *testing.T) {
	buf := make([]byte, MaxFrameLen)
	regs := []byte{0x00, 0x01, 0x02, 0x03}
	n := EncodeReadResponse(buf, 0x01, ReadHoldingRegisters, regs)
	// [01 03 04 00 01 02 03 EA 92]
	assert.Equal(t, []byte{0x01, 0x03, 0x04, 0x00, 0x01, 0x02, 0x03, 0xEA, 0x92}, buf[:n])
}

func TestDecodeWriteMultipleRequest(t *testing.T) {
	// Start 0x4273, qty 0x7B (123), 0xF6 data bytes.
	frame := make([]byte, 0, writeMultiMinLen+0xF6)
	frame = append(frame, 0x01, 0x10, 0x42, 0x73, 0x00, 0x7B, 0xF6)
	data := make([]byte, 0xF6)
	frame = append(frame, data...)
	frame = append(frame, 0x9D, 0x1D)

	req, err := DecodeWriteMultipleRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x4273), req.Start)
	assert.Equal(t, uint16(0x7B), req.Quantity)
	assert.Len(t, req.Values, 0xF6)
}

func TestDecodeWriteMultipleRequestByteCountMismatch(t *testing.T) {
	frame := []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x02, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := DecodeWriteMultipleRequest(frame)
	assert.ErrorIs(t, err, ErrByteCountMismatch)
}

func TestEncodeWriteMultipleResponse(t *testing.T) {
	buf := make([]byte, MaxFrameLen)
	n := EncodeWriteMultipleResponse(buf, 0x01, 0x4273, 0x7B)
	assert.Equal(t, []byte{0x01, 0x10, 0x42, 0x73, 0x00, 0x7B, 0x65, 0x89}, buf[:n])
}

func TestEncodeException(t *testing.T) {
	buf := make([]byte, MaxFrameLen)
	n := EncodeException(buf, 0x01, ReadInputRegisters, IllegalFunction)
	// [01 84 01 82 C0]
	assert.Equal(t, []byte{0x01, 0x84, 0x01, 0x82, 0xC0}, buf[:n])
}

func TestFunctionCodeWithExceptionAndDescribe(t *testing.T) {
	fc := ReadInputRegisters.WithException()
	assert.True(t, fc.IsException())
	assert.Equal(t, "ReadInputRegisters", fc.Describe())
}
