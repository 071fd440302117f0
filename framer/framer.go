// Package framer implements the Modbus RTU byte-stream state machine:
// it detects frame boundaries using the inter-character (t1.5) and
// inter-frame (t3.5) silent-interval rules, buffers inbound bytes,
// and drives outbound byte-level transmission with backpressure and
// timeout recovery.
//
// A Framer is driven exclusively by four events: Receive (a UART byte
// arrived), Timeout (the armed timer elapsed), ReadPDU (the
// application layer collects a received frame) and WritePDU (the
// application layer wants to send a frame). None of its methods may
// be called re-entrantly for the same instance; the caller serializes
// access, same as every other entry point in this module (see the
// Device type at the module root).
package framer

import (
	"reflect"
	"time"

	"github.com/embeddedmodbus/rtuserver/common"
	"github.com/embeddedmodbus/rtuserver/host"
	"go.uber.org/zap"
)

// Phase is one state of the RTU byte-stream machine.
type Phase int

const (
	Init Phase = iota
	Idle
	Receiving
	ControlAndWait
	ProcessRxFrame
	Emitting
	WaitForTxComplete
	TxTimeout
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "Init"
	case Idle:
		return "Idle"
	case Receiving:
		return "Receiving"
	case ControlAndWait:
		return "ControlAndWait"
	case ProcessRxFrame:
		return "ProcessRxFrame"
	case Emitting:
		return "Emitting"
	case WaitForTxComplete:
		return "WaitForTxComplete"
	case TxTimeout:
		return "TxTimeout"
	default:
		return "Unknown"
	}
}

const rxBufferSize = 256

// timing is the (t1.5, t3.5) silent-interval pair for a supported
// baud rate, in microseconds, per the Modbus-over-serial standard
// §2.5.1.1.
type timing struct {
	t1_5 time.Duration
	t3_5 time.Duration
}

var baudTimings = map[int]timing{
	1200:  {13750 * time.Microsecond, 32083 * time.Microsecond},
	2400:  {6875 * time.Microsecond, 16041 * time.Microsecond},
	4800:  {3437 * time.Microsecond, 8020 * time.Microsecond},
	9600:  {1719 * time.Microsecond, 4010 * time.Microsecond},
	14400: {1146 * time.Microsecond, 2674 * time.Microsecond},
	19200: {859 * time.Microsecond, 2005 * time.Microsecond},
}

// fixedHighBaudTiming is used for every baud rate at or above 28800;
// the standard fixes the silent intervals rather than scaling them
// further.
var fixedHighBaudTiming = timing{750 * time.Microsecond, 1750 * time.Microsecond}

func timingForBaud(baud int) (timing, bool) {
	if t, ok := baudTimings[baud]; ok {
		return t, true
	}
	if baud >= 28800 {
		return fixedHighBaudTiming, true
	}
	return timing{}, false
}

// Framer is the RTU byte-stream state machine described at the top
// of this package. It holds no goroutines and performs no I/O of its
// own; every byte in or out passes through the host.UART it was
// configured with.
type Framer struct {
	logger *zap.Logger

	address byte
	t1_5    time.Duration
	t3_5    time.Duration
	host    host.UART

	phase Phase

	rxBuf [rxBufferSize]byte
	rxLen int

	txRef   []byte
	txTotal int
	txSent  int
}

// New returns an unconfigured Framer. Configure must be called before
// any event method.
func New() *Framer {
	return &Framer{logger: zap.NewNop()}
}

// Configure binds addr and baud to the framer and arms the initial
// t3.5 silence window. addr must not be 0 (broadcast) or 255; no
// other address is rejected. baud must be one of the rates in
// baudTimings, or >= 28800.
func (f *Framer) Configure(logger *zap.Logger, addr byte, baud int, h host.UART) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr == 0 || addr == 255 {
		logger.Error("invalid server address", zap.Uint8("address", addr))
		return common.ErrInvalidArgument
	}
	t, ok := timingForBaud(baud)
	if !ok {
		logger.Error("unsupported baud rate", zap.Int("baud", baud))
		return common.ErrInvalidArgument
	}
	if h == nil {
		logger.Error("host interface is required")
		return common.ErrBadHandle
	}

	f.logger = logger
	f.address = addr
	f.t1_5 = t.t1_5
	f.t3_5 = t.t3_5
	f.host = h
	f.Reset()
	return nil
}

// Reset zeroizes the framer's buffered state and returns it to Init,
// arming the first t3.5 silence window.
func (f *Framer) Reset() {
	f.rxLen = 0
	f.txRef = nil
	f.txTotal = 0
	f.txSent = 0
	f.setPhase(Init)
	if f.host != nil {
		f.host.StartTimer(f.t3_5)
	}
}

func (f *Framer) setPhase(p Phase) {
	f.logger.Debug("framer phase transition", zap.Stringer("from", f.phase), zap.Stringer("to", p))
	f.phase = p
}

func bufferIdentity(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return reflect.ValueOf(b).Pointer()
}

func sameBuffer(a, b []byte) bool {
	return bufferIdentity(a) == bufferIdentity(b) && len(a) > 0 && len(b) > 0
}

// Receive delivers one inbound UART byte to the framer.
func (f *Framer) Receive(b byte) error {
	switch f.phase {
	case Init:
		f.host.StartTimer(f.t3_5)
		return common.ErrAgain
	case Idle:
		f.rxBuf[0] = b
		f.rxLen = 1
		f.host.StartTimer(f.t1_5)
		f.setPhase(Receiving)
		return nil
	case Receiving:
		if f.rxLen >= rxBufferSize {
			f.logger.Warn("inbound frame exceeds buffer capacity", zap.Int("capacity", rxBufferSize))
			return common.ErrNoBufferSpace
		}
		f.rxBuf[f.rxLen] = b
		f.rxLen++
		f.host.StartTimer(f.t1_5)
		return nil
	case ControlAndWait:
		// A byte arriving during the post-frame silence window is
		// discarded, not appended: the already-buffered frame is
		// complete and waiting on the address filter, and a stray
		// byte here only means the line hasn't gone silent for a
		// full t3.5 yet. Only the timer restarts.
		f.host.StartTimer(f.t3_5)
		return common.ErrBusy
	default:
		return common.ErrBusy
	}
}

// Timeout delivers the armed timer's expiration to the framer.
func (f *Framer) Timeout() error {
	switch f.phase {
	case Init:
		f.rxLen = 0
		f.setPhase(Idle)
		return nil
	case Receiving:
		f.setPhase(ControlAndWait)
		f.host.StartTimer(f.t3_5 - f.t1_5)
		return nil
	case ControlAndWait:
		if f.rxBuf[0] == f.address || f.rxBuf[0] == 0 {
			f.logger.Debug("WireFrame", common.WireFrame(f.rxBuf[:f.rxLen]))
			f.host.FrameReceived()
			f.setPhase(ProcessRxFrame)
		} else {
			f.logger.Debug("discarding frame for other address", zap.Uint8("frameAddress", f.rxBuf[0]), common.WireFrame(f.rxBuf[:f.rxLen]))
			f.rxLen = 0
			f.setPhase(Idle)
		}
		return nil
	case Emitting:
		f.setPhase(TxTimeout)
		return nil
	case WaitForTxComplete:
		f.setPhase(Idle)
		return nil
	default:
		return common.ErrBusy
	}
}

// ReadPDU copies the pending received frame into out and returns its
// length. Outside ProcessRxFrame it returns (0, nil): no frame is
// ready yet.
func (f *Framer) ReadPDU(out []byte) (int, error) {
	if f.phase != ProcessRxFrame {
		return 0, nil
	}
	if f.rxLen >= len(out) {
		return 0, common.ErrInvalidArgument
	}
	n := copy(out, f.rxBuf[:f.rxLen])
	f.setPhase(Idle)
	return n, nil
}

// WritePDU offers a complete frame for transmission. Callers whose
// previous call returned common.ErrAgain must retry with the exact
// same buffer (same underlying array) and the same length; the
// framer tracks the outbound frame by buffer identity, not by
// content.
func (f *Framer) WritePDU(buf []byte) error {
	switch f.phase {
	case Init:
		f.host.StartTimer(f.t3_5)
		return common.ErrAgain
	case Idle:
		return f.beginWrite(buf)
	case Emitting:
		return f.continueWrite(buf)
	case TxTimeout:
		if sameBuffer(buf, f.txRef) {
			f.host.StartTimer(f.t3_5)
			f.setPhase(WaitForTxComplete)
			return common.ErrTimeout
		}
		return common.ErrBusy
	default:
		return common.ErrBusy
	}
}

func (f *Framer) beginWrite(buf []byte) error {
	f.logger.Debug("WireFrame", common.WireFrame(buf))
	n, err := f.host.Write(buf)
	if err != nil {
		return err
	}
	if n < len(buf) {
		f.txRef = buf
		f.txTotal = len(buf)
		f.txSent = n
		f.host.StartTimer(f.t1_5)
		f.setPhase(Emitting)
		return common.ErrAgain
	}
	f.host.StartTimer(f.t3_5)
	f.setPhase(WaitForTxComplete)
	return nil
}

func (f *Framer) continueWrite(buf []byte) error {
	if !sameBuffer(buf, f.txRef) {
		return common.ErrBusy
	}
	if len(buf) != f.txTotal {
		return common.ErrInvalidArgument
	}
	remaining := f.txTotal - f.txSent
	n, err := f.host.Write(buf[f.txSent:f.txTotal])
	if err != nil {
		f.host.StartTimer(f.t3_5)
		f.setPhase(WaitForTxComplete)
		return err
	}
	if n >= remaining {
		f.host.StartTimer(f.t3_5)
		f.setPhase(WaitForTxComplete)
		return nil
	}
	f.txSent += n
	f.host.StartTimer(f.t1_5)
	return common.ErrAgain
}

// CurrentPhase reports the framer's current state, for diagnostics
// and tests.
func (f *Framer) CurrentPhase() Phase {
	return f.phase
}
