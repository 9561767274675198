// Package serialtransport wires lorae5.Transport to a real serial port
// via go.bug.st/serial, the external collaborator the core spec
// explicitly leaves out (spec §1 Out of scope: "the underlying serial
// transport").
package serialtransport

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"

	lorae5 "github.com/agsys/lora-e5-driver"
)

// Config describes the serial port the LoRa-E5 modem is attached to.
type Config struct {
	Port     string
	BaudRate int
}

// DefaultConfig matches the LoRa-E5's documented UART settings.
func DefaultConfig() Config {
	return Config{Port: "/dev/ttyUSB0", BaudRate: 9600}
}

// Port adapts a go.bug.st/serial.Port to lorae5.Transport.
type Port struct {
	port serial.Port
}

// Open opens and configures the serial port.
func Open(cfg Config) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("serialtransport: open %s: %w", cfg.Port, err)
	}
	return &Port{port: p}, nil
}

// Close releases the underlying OS handle.
func (p *Port) Close() error { return p.port.Close() }

// Read implements lorae5.Transport. go.bug.st/serial has no native
// context support, so a read deadline derived from ctx is applied to the
// port instead; cancellation after the deadline still unblocks the call.
func (p *Port) Read(ctx context.Context, buf []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = p.port.SetReadTimeout(time.Until(deadline))
	} else {
		_ = p.port.SetReadTimeout(serial.NoTimeout)
	}
	n, err := p.port.Read(buf)
	if err != nil {
		return n, err
	}
	if n == 0 && ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return n, nil
}

// Write implements lorae5.Transport as a single logical write.
func (p *Port) Write(ctx context.Context, buf []byte) error {
	_, err := p.port.Write(buf)
	return err
}

var _ lorae5.Transport = (*Port)(nil)
