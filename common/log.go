package common

import (
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// WireFrame formats b as an upper-case hex dump for a zap.String
// field, so every package logs on-the-wire frame bytes the same way.
func WireFrame(b []byte) zap.Field {
	return zap.String("bytes", strings.ToUpper(hex.EncodeToString(b)))
}
