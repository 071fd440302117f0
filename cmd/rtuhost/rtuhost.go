package main

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	rtuserver "github.com/embeddedmodbus/rtuserver"
)

// pollInterval bounds how long runLoop can go between unprompted
// Poll calls; FrameReceived notifications wake it sooner.
const pollInterval = 20 * time.Millisecond

// runLoop is the single goroutine that serializes every call into
// Device, as the module's concurrency model requires (see the
// rtuserver.Device doc: none of its methods may be called
// re-entrantly, the caller serializes them). It corresponds to the
// superloop integration pattern named in the package doc: a byte
// reader goroutine feeds a channel, and everything else - timer
// expiry, frame-ready notifications, and periodic polling - funnels
// through this one select loop instead of a mutex around concurrent
// callers.
func runLoop(ctx context.Context, logger *zap.Logger, device *rtuserver.Device, reader io.Reader, adapter *serialAdapter) error {
	byteCh := make(chan byte, 256)
	readErrCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := reader.Read(buf)
			if n > 0 {
				select {
				case byteCh <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErrCh <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErrCh:
			return err
		case b := <-byteCh:
			logDeviceErr(logger, "Receive", device.Receive(b))
		case <-adapter.timeoutCh:
			logDeviceErr(logger, "Timeout", device.Timeout())
		case <-adapter.frameCh:
			logDeviceErr(logger, "Poll", device.Poll())
		case <-ticker.C:
			logDeviceErr(logger, "Poll", device.Poll())
		}
	}
}
