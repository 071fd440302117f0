// Command rtuhost runs this module's Modbus RTU server against a real
// serial device, backed by a trivial in-memory register bank. It
// exists to exercise the library end to end - the library itself
// starts no threads and owns no file descriptors - and to show one
// concrete host integration: a single goroutine superloop that takes
// UART bytes from a reader goroutine and drives the three Device entry
// points (see rtuhost.go).
// Embedded hosts typically integrate one of two ways, an RTOS task
// guarded by a mutex or a bare superloop deferring ISR work through
// flags; this binary follows the superloop shape since the library
// owns no threads of its own to hand a mutex to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/tarm/serial"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	rtuserver "github.com/embeddedmodbus/rtuserver"
	"github.com/embeddedmodbus/rtuserver/host"
)

func main() {
	app := &cli.App{
		Name:  "rtuhost",
		Usage: "run an embeddedmodbus Modbus RTU server against a serial device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "serial device path, e.g. /dev/ttyUSB0",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "baud",
				Aliases: []string{"b"},
				Usage:   "baud rate",
				Value:   19200,
			},
			&cli.UintFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Modbus server address (1-247)",
				Value:   1,
			},
			&cli.UintFlag{
				Name:  "registers",
				Usage: "size of the demo holding/input register bank",
				Value: 128,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	port, err := serial.OpenPort(&serial.Config{
		Name:        c.String("device"),
		Baud:        c.Int("baud"),
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: time.Millisecond * 500,
	})
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer port.Close()

	bank := newRegisterBank(int(c.Uint("registers")))
	adapter := newSerialAdapter(logger, port)
	device, err := rtuserver.NewDevice(logger, byte(c.Uint("address")), c.Int("baud"), adapter, host.Registers{
		ReadHoldingRegisters: bank.readHolding,
		ReadInputRegisters:   bank.readInput,
		WriteRegisters:       bank.writeHolding,
	})
	if err != nil {
		return fmt.Errorf("configuring device: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		logger.Info("received interrupt, shutting down")
		cancel()
	}()

	logger.Info("starting Modbus RTU server",
		zap.String("device", c.String("device")),
		zap.Int("baud", c.Int("baud")),
		zap.Uint("address", c.Uint("address")))
	return runLoop(ctx, logger, device, port, adapter)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
