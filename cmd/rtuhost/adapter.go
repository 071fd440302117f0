package main

import (
	"errors"
	"time"

	"go.uber.org/zap"

	rtuserver "github.com/embeddedmodbus/rtuserver"
)

// byteWriter is the minimal surface the adapter needs from its wire:
// satisfied by *serial.Port in production and by a pty master file in
// tests.
type byteWriter interface {
	Write(b []byte) (int, error)
}

// serialAdapter implements host.UART over a byteWriter plus a
// software one-shot timer. It deliberately does not read bytes
// itself: host.UART's contract only covers arming the timer, writing
// outbound bytes, and the synchronous frame-received notification
// (see the core module's host package); reading is owned by runLoop
// (rtuhost.go) so the whole adapter stays on one goroutine per responsibility,
// matching the superloop integration pattern described in the package
// doc.
type serialAdapter struct {
	logger *zap.Logger
	writer byteWriter

	timer     *time.Timer
	timeoutCh chan struct{}
	frameCh   chan struct{}
}

func newSerialAdapter(logger *zap.Logger, writer byteWriter) *serialAdapter {
	return &serialAdapter{
		logger:    logger,
		writer:    writer,
		timeoutCh: make(chan struct{}, 1),
		frameCh:   make(chan struct{}, 1),
	}
}

// StartTimer (re)arms a one-shot timer. A prior arming is always
// cancelled first, matching the "previous arming is cancelled"
// requirement on host.UART.StartTimer.
func (a *serialAdapter) StartTimer(d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(d, func() {
		select {
		case a.timeoutCh <- struct{}{}:
		default:
		}
	})
}

func (a *serialAdapter) Write(b []byte) (int, error) {
	n, err := a.writer.Write(b)
	if err != nil {
		a.logger.Warn("serial write failed", zap.Error(err))
	}
	return n, err
}

// FrameReceived wakes runLoop immediately instead of waiting for the
// next poll tick. It must stay non-blocking: the core framer calls it
// synchronously from whatever context delivered the timer expiry that
// ended the frame's silence window.
func (a *serialAdapter) FrameReceived() {
	select {
	case a.frameCh <- struct{}{}:
	default:
	}
}

// logDeviceErr classifies an error returned by a Device entry point:
// ErrAgain/ErrBusy are routine backpressure, everything else gets a
// louder log line.
func logDeviceErr(logger *zap.Logger, op string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, rtuserver.ErrAgain) || errors.Is(err, rtuserver.ErrBusy) {
		logger.Debug("device call needs a retry", zap.String("op", op), zap.Error(err))
		return
	}
	logger.Warn("device call failed", zap.String("op", op), zap.Error(err))
}
