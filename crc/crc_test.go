package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		lo   byte
		hi   byte
	}{
		{
			name: "ReadHoldingRegistersRequest",
			data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02},
			lo:   0xC4,
			hi:   0x0B,
		},
		{
			name: "WriteSingleRegisterRequest",
			data: []byte{0x01, 0x06, 0x00, 0x00, 0x42, 0x42},
			lo:   0x39,
			hi:   0x5B,
		},
		{
			name: "WrongAddressRequest",
			data: []byte{0x02, 0x04, 0x00, 0x00, 0x00, 0x01},
			lo:   0x31,
			hi:   0xF9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := Checksum(tt.data)
			assert.Equal(t, tt.lo, byte(crc))
			assert.Equal(t, tt.hi, byte(crc>>8))
		})
	}
}

func TestAppendAndValidateRoundTrip(t *testing.T) {
	body := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}
	frame := Append(append([]byte{}, body...), body)
	assert.Len(t, frame, len(body)+2)
	assert.True(t, Validate(frame))
}

func TestValidateDetectsCorruption(t *testing.T) {
	frame := []byte{0x01, 0x04, 0x00, 0x00, 0x00, 0x00}
	assert.False(t, Validate(frame))
}

func TestValidateRejectsShortFrame(t *testing.T) {
	assert.False(t, Validate([]byte{0x01}))
}
