package pdu

import "errors"

var (
	// ErrBadLength is returned when a frame is not the exact (or
	// minimum) length its function code requires.
	ErrBadLength = errors.New("pdu: frame has wrong length for its function code")
	// ErrByteCountMismatch is returned when a Write Multiple
	// Registers request's byte-count field does not equal twice its
	// declared quantity.
	ErrByteCountMismatch = errors.New("pdu: byte count does not match register quantity")
)
