// Package lorae5 drives a Seeed LoRa-E5 LoRaWAN modem over its
// line-oriented AT command protocol: encode commands, classify the
// incoming byte stream into responses and unsolicited events, and
// compose both into join/send/receive operations.
//
// The package owns none of the serial transport, scheduling, or logging
// that surrounds it — callers provide a Transport and an optional
// Config, and everything downstream (internal/serialtransport,
// internal/history, internal/zmqexport, internal/monitor, cmd/loractl)
// builds on top of this core.
package lorae5
