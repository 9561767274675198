package lorae5

import "fmt"

// MaxPayloadLen is the largest LoRaWAN application payload the driver
// buffers, large enough to cover the biggest frame at any region (spec
// invariant: "every URC payload container (243 bytes) >= max LoRaWAN
// payload at any region").
const MaxPayloadLen = 242

// BoundedText is a fixed-capacity UTF-8 text container. Go has no
// compile-time "array length from type parameter" facility (no const
// generics), so unlike the spec's BoundedText<N>, capacity is a runtime
// field fixed at construction and never grows afterwards — the same
// guarantee spec.md asks for (no unbounded growth, no silent truncation),
// checked at assignment time instead of by the type system. See
// DESIGN.md for why this is the idiomatic Go rendering.
type BoundedText struct {
	max int
	val string
}

// NewBoundedText returns an empty BoundedText with the given capacity.
func NewBoundedText(capacity int) BoundedText {
	return BoundedText{max: capacity}
}

// Set overwrites the contained text, failing with CapacityExceeded (and
// leaving the previous value untouched) if s does not fit.
func (t *BoundedText) Set(s string) error {
	if len(s) > t.max {
		return errCapacity(fmt.Sprintf("text %q exceeds capacity %d", s, t.max))
	}
	t.val = s
	return nil
}

// String returns the contained text.
func (t BoundedText) String() string { return t.val }

// Cap returns the configured capacity.
func (t BoundedText) Cap() int { return t.max }

// BoundedBytes is a fixed-capacity raw byte container, the same
// runtime-checked-capacity rendering as BoundedText but for binary
// payloads (command buffers, downlink payloads).
type BoundedBytes struct {
	max int
	val []byte
}

// NewBoundedBytes returns an empty BoundedBytes with the given capacity.
func NewBoundedBytes(capacity int) BoundedBytes {
	return BoundedBytes{max: capacity}
}

// Set copies data into the container, failing with CapacityExceeded if it
// does not fit. Partial writes are never observable: on failure the
// previous contents are left untouched.
func (b *BoundedBytes) Set(data []byte) error {
	if len(data) > b.max {
		return errCapacity(fmt.Sprintf("%d bytes exceeds capacity %d", len(data), b.max))
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	b.val = buf
	return nil
}

// Bytes returns the contained bytes.
func (b BoundedBytes) Bytes() []byte { return b.val }

// Len returns the number of bytes currently held.
func (b BoundedBytes) Len() int { return len(b.val) }

// Cap returns the configured capacity.
func (b BoundedBytes) Cap() int { return b.max }

// EUI64 is a LoRaWAN 64-bit extended identifier (DevEUI/AppEUI), carried
// big-endian on the wire and formatted as grouped hex by the modem AT
// interface.
type EUI64 [8]byte

// EUI64FromUint64 builds an EUI64 from its big-endian numeric value.
func EUI64FromUint64(v uint64) EUI64 {
	var e EUI64
	for i := 0; i < 8; i++ {
		e[7-i] = byte(v >> (8 * i))
	}
	return e
}

// Uint64 returns the big-endian numeric value of the EUI.
func (e EUI64) Uint64() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(e[i])
	}
	return v
}

// AppKey is the 128-bit LoRaWAN root key, canonically little-endian on
// the wire per spec.md's resolution of the historical u128-vs-[u8;16]
// ambiguity.
type AppKey [16]byte

// AppKeyFromUint128LE builds an AppKey from 16 little-endian bytes.
func AppKeyFromUint128LE(b [16]byte) AppKey { return AppKey(b) }

// DevAddr is the 32-bit LoRaWAN device address assigned at join time.
type DevAddr [4]byte

// JoinStatus is the terminal (or in-progress) state of an OTAA join,
// as latched by JOIN_STATUS.
type JoinStatus int

const (
	JoinNotJoined JoinStatus = iota
	JoinJoining
	JoinSuccess
	JoinFailure
	JoinUnknown
)

func (s JoinStatus) String() string {
	switch s {
	case JoinNotJoined:
		return "not_joined"
	case JoinJoining:
		return "joining"
	case JoinSuccess:
		return "success"
	case JoinFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// JoinSnapshot is the latched value of JOIN_STATUS, including the NetID
// and DevAddr text the modem reported the moment it joined.
type JoinSnapshot struct {
	Status  JoinStatus
	NetID   string // up to 12 bytes, e.g. "000013"
	DevAddr string // up to 22 bytes, e.g. "26:01:1B:8A"
}

// RxStats is the receive-quality triple the modem reports for every
// downlink window, whether or not a payload was delivered in it. Spec.md
// describes this inline (RXWIN/RSSI/SNR) without naming the type; named
// here so decoders, URC events and the client share one definition.
type RxStats struct {
	Rxwin uint8
	Rssi  int8
	Snr   float32
}

// DownlinkPayload is one decoded application-layer downlink frame.
type DownlinkPayload struct {
	Port    uint8
	Payload [MaxPayloadLen + 1]byte // 243 bytes, see spec invariant
	Length  int
}

// Bytes returns the valid portion of Payload.
func (d DownlinkPayload) Bytes() []byte { return d.Payload[:d.Length] }
