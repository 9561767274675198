package lorae5

import (
	"context"
	"time"
)

// Transport is the byte-level boundary the core depends on; the serial
// link itself is an external collaborator (spec §1 Out of scope). A
// caller supplies a concrete implementation — internal/serialtransport's
// go.bug.st/serial wrapper for real hardware, or a fake for tests.
type Transport interface {
	// Read blocks for at least one byte (or ctx cancellation) and
	// returns the number of bytes copied into p.
	Read(ctx context.Context, p []byte) (int, error)
	// Write sends the full contents of p as a single logical write.
	Write(ctx context.Context, p []byte) error
}

// Config holds the tunables named in spec §6.
type Config struct {
	FlushTimeout       time.Duration
	CmdCooldown        time.Duration
	TxTimeout          time.Duration
	IngressBufSize     int
	UrcChannelCapacity int
	UrcSubscribers     int
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{
		FlushTimeout:       2000 * time.Millisecond,
		CmdCooldown:        200 * time.Millisecond,
		TxTimeout:          2000 * time.Millisecond,
		IngressBufSize:     1012,
		UrcChannelCapacity: 40,
		UrcSubscribers:     0,
	}
}
