package lorae5

import (
	"fmt"
	"strings"
	"time"
)

// defaultReplyTimeout is the reply timeout every Command uses unless it
// overrides Timeout().
const defaultReplyTimeout = 1 * time.Second

// Command is a request the client can send to the modem. Each variant
// knows its own static wire-size bound, its own reply-timeout override
// (if any) and how to decode its own reply.
type Command interface {
	// Encode writes "AT...\r\n" into buf (len(buf) >= MaxLen()) and
	// returns the number of bytes written.
	Encode(buf []byte) int
	// MaxLen is the static upper bound on Encode's output.
	MaxLen() int
	// Timeout overrides the arbiter's default reply wait, or returns 0 to
	// use the default.
	Timeout() time.Duration
	// Decode turns a response body (with the "+TAG: " envelope already
	// stripped by the digester) into this command's typed Response.
	Decode(body string) (Response, error)
	// Name identifies the command for error messages and logs.
	Name() string
}

// Response is the marker type for every command's typed reply. Concrete
// values are the various *Reply/*Counters/Ack structs below.
type Response interface{}

// Ack is the typed Response for commands whose reply carries no useful
// payload beyond "it worked".
type Ack struct{}

func appendLine(buf []byte, s string) int {
	n := copy(buf, s)
	return n
}

// splitTagBody splits a digester body of the form "TAG: value..." (or
// "TAG: key, value..." for multi-field replies) into tag and the rest,
// trimming the single space after the colon if present.
func splitTagBody(body string) (tag, rest string, ok bool) {
	for i := 0; i < len(body); i++ {
		if body[i] == ':' {
			tag = body[:i]
			rest = body[i+1:]
			if len(rest) > 0 && rest[0] == ' ' {
				rest = rest[1:]
			}
			return tag, rest, true
		}
	}
	return "", "", false
}

// --- AT: comms check -------------------------------------------------

// CommCheck is the bare "AT" liveness probe the client issues on New and
// between retries.
type CommCheck struct{}

func (CommCheck) Name() string                 { return "AT" }
func (CommCheck) MaxLen() int                   { return len("AT\r\n") }
func (CommCheck) Timeout() time.Duration        { return defaultReplyTimeout }
func (CommCheck) Encode(buf []byte) int         { return appendLine(buf, "AT\r\n") }
func (CommCheck) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+VER -----------------------------------------------------------

// VersionGet requests the firmware version triple (S1).
type VersionGet struct{}

// VersionTriple is the canonical version representation (spec §9: triple,
// not string — the string form is for logging only).
type VersionTriple struct {
	Major, Minor, Patch int
}

func (v VersionTriple) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

func (VersionGet) Name() string          { return "VER" }
func (VersionGet) MaxLen() int           { return len("AT+VER\r\n") }
func (VersionGet) Timeout() time.Duration { return defaultReplyTimeout }
func (VersionGet) Encode(buf []byte) int { return appendLine(buf, "AT+VER\r\n") }

func (VersionGet) Decode(body string) (Response, error) {
	_, rest, ok := splitTagBody(body)
	if !ok {
		rest = body
	}
	var v VersionTriple
	n, err := fmt.Sscanf(rest, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return nil, errParse("malformed +VER body: " + body)
	}
	return v, nil
}

// --- AT+MODE ------------------------------------------------------------

// JoinMode is the LoRaWAN activation mode (spec §4.2 JoinMode∈{OTAA,ABP,TEST}).
type JoinMode int

const (
	ModeOTAA JoinMode = iota
	ModeABP
	ModeTest
	ModeUnknown
)

func (m JoinMode) atParam() string {
	switch m {
	case ModeOTAA:
		return "LWOTAA"
	case ModeABP:
		return "LWABP"
	case ModeTest:
		return "TEST"
	default:
		return "LWOTAA"
	}
}

func parseJoinMode(s string) JoinMode {
	switch s {
	case "LWOTAA":
		return ModeOTAA
	case "LWABP":
		return ModeABP
	case "TEST":
		return ModeTest
	default:
		return ModeUnknown
	}
}

// ModeSet issues AT+MODE=<LWOTAA|LWABP|TEST>. The modem takes up to 10s
// to settle (spec §4.2 override).
type ModeSet struct{ Mode JoinMode }

// ModeReply is the typed response to ModeSet.
type ModeReply struct{ Mode JoinMode }

func (c ModeSet) Name() string          { return "MODE" }
func (ModeSet) MaxLen() int             { return len("AT+MODE=LWOTAA\r\n") }
func (ModeSet) Timeout() time.Duration  { return 10 * time.Second }
func (c ModeSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+MODE=%s\r\n", c.Mode.atParam()))
}

func (ModeSet) Decode(body string) (Response, error) {
	_, rest, ok := splitTagBody(body)
	if !ok {
		return nil, errParse("malformed +MODE body: " + body)
	}
	mode := parseJoinMode(rest)
	if mode == ModeUnknown {
		return nil, errParse("unrecognised mode in +MODE body: " + body)
	}
	return ModeReply{Mode: mode}, nil
}

// --- AT+ID --------------------------------------------------------------

// DevEuiSet issues AT+ID=DevEui,<hex>.
type DevEuiSet struct{ Value EUI64 }

func (DevEuiSet) Name() string   { return "ID=DevEui" }
func (DevEuiSet) MaxLen() int    { return len("AT+ID=DevEui,") + 23 + len("\r\n") }
func (DevEuiSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c DevEuiSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+ID=DevEui,%s\r\n", c.Value.HexString()))
}
func (DevEuiSet) Decode(body string) (Response, error) { return Ack{}, nil }

// AppEuiSet issues AT+ID=AppEui,<hex>.
type AppEuiSet struct{ Value EUI64 }

func (AppEuiSet) Name() string   { return "ID=AppEui" }
func (AppEuiSet) MaxLen() int    { return len("AT+ID=AppEui,") + 23 + len("\r\n") }
func (AppEuiSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c AppEuiSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+ID=AppEui,%s\r\n", c.Value.HexString()))
}
func (AppEuiSet) Decode(body string) (Response, error) { return Ack{}, nil }

// IDGet queries one identity sub-key ("DevEui" or "AppEui"); the modem
// answers with its own +ID: line which the digester yields as a separate
// response event per spec §4.3.
type IDGet struct{ Key string }

// DevEuiReply/AppEuiReply carry the parsed identity value.
type DevEuiReply struct{ Value EUI64 }
type AppEuiReply struct{ Value EUI64 }

func (c IDGet) Name() string   { return "ID?" }
func (IDGet) MaxLen() int      { return len("AT+ID=") + 6 + len("\r\n") }
func (IDGet) Timeout() time.Duration { return defaultReplyTimeout }
func (c IDGet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+ID=%s\r\n", c.Key))
}

func (c IDGet) Decode(body string) (Response, error) {
	_, rest, ok := splitTagBody(body)
	if !ok {
		return nil, errParse("malformed +ID body: " + body)
	}
	_, hexPart, ok := splitTagBody(rest)
	if !ok {
		hexPart = rest
	}
	v, err := ParseEUI64(hexPart)
	if err != nil {
		return nil, err
	}
	if c.Key == "AppEui" {
		return AppEuiReply{Value: v}, nil
	}
	return DevEuiReply{Value: v}, nil
}

// --- AT+KEY -------------------------------------------------------------

// AppKeySet issues AT+KEY=APPKEY,<hex>.
type AppKeySet struct{ Value AppKey }

func (AppKeySet) Name() string   { return "KEY=APPKEY" }
func (AppKeySet) MaxLen() int    { return len("AT+KEY=APPKEY,") + 32 + len("\r\n") }
func (AppKeySet) Timeout() time.Duration { return defaultReplyTimeout }
func (c AppKeySet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+KEY=APPKEY,%s\r\n", c.Value.HexString()))
}
func (AppKeySet) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+DR (region / data rate) -----------------------------------------

// Region is the LoRaWAN regional parameter set.
type Region int

const (
	EU868 Region = iota
	US915
	EU433
	AU915
	CN470
	CN779
	KR920
	IN865
	RU864
	AS923
	JP920
)

var regionNames = map[Region]string{
	EU868: "EU868", US915: "US915", EU433: "EU433", AU915: "AU915",
	CN470: "CN470", CN779: "CN779", KR920: "KR920", IN865: "IN865",
	RU864: "RU864", AS923: "AS923", JP920: "JP920",
}

func (r Region) String() string {
	if s, ok := regionNames[r]; ok {
		return s
	}
	return "EU868"
}

// RegionSet issues AT+DR=<REGION>. On the LoRa-E5 the AT+DR prefix is
// overloaded: before join it selects the region, after join the same
// prefix takes a bare 0-15 data-rate index (DataRateSet below) — an
// undocumented variant the spec explicitly calls out (§9).
type RegionSet struct{ Region Region }

func (RegionSet) Name() string   { return "DR=region" }
func (RegionSet) MaxLen() int    { return len("AT+DR=") + 5 + len("\r\n") }
func (RegionSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c RegionSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+DR=%s\r\n", c.Region.String()))
}
func (RegionSet) Decode(body string) (Response, error) { return Ack{}, nil }

// DataRateSet issues AT+DR=<0-15>. Not used by the high-level client
// directly — spec.md documents dr_set as a local flag the client caches
// rather than a modem round trip — but the shape is kept as a low-level
// building block (see DESIGN.md's Open Question note).
type DataRateSet struct{ DR uint8 }

func (DataRateSet) Name() string   { return "DR=rate" }
func (DataRateSet) MaxLen() int    { return len("AT+DR=15\r\n") }
func (DataRateSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c DataRateSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+DR=%d\r\n", c.DR))
}
func (DataRateSet) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+CLASS -------------------------------------------------------------

// Class is the LoRaWAN device class.
type Class int

const (
	ClassA Class = iota
	ClassB
	ClassC
)

func (c Class) String() string {
	switch c {
	case ClassB:
		return "B"
	case ClassC:
		return "C"
	default:
		return "A"
	}
}

// ClassSet issues AT+CLASS=<A|B|C>.
type ClassSet struct{ Class Class }

func (ClassSet) Name() string   { return "CLASS" }
func (ClassSet) MaxLen() int    { return len("AT+CLASS=A\r\n") }
func (ClassSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c ClassSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+CLASS=%s\r\n", c.Class.String()))
}
func (ClassSet) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+JOIN --------------------------------------------------------------

// JoinOtaa issues AT+JOIN. The immediate reply only acknowledges the
// request; completion is reported exclusively through +JOIN: URCs.
type JoinOtaa struct{}

// JoinAck is what JoinOtaa.Decode makes of a reply body. Arbiter.Send
// does not wait for or decode a reply to JoinOtaa; it returns Ack{} once
// the write completes.
type JoinAck struct{ Text string }

func (JoinOtaa) Name() string   { return "JOIN" }
func (JoinOtaa) MaxLen() int    { return len("AT+JOIN\r\n") }
func (JoinOtaa) Timeout() time.Duration { return 10 * time.Second }
func (JoinOtaa) Encode(buf []byte) int { return appendLine(buf, "AT+JOIN\r\n") }
func (JoinOtaa) Decode(body string) (Response, error) { return JoinAck{Text: body}, nil }

// AutoJoinSet issues AT+JOIN=AUTO,<interval> or AT+JOIN=0 to disable.
type AutoJoinSet struct {
	On       bool
	Interval uint32
}

func (AutoJoinSet) Name() string   { return "JOIN=AUTO" }
func (AutoJoinSet) MaxLen() int    { return len("AT+JOIN=AUTO,4294967295\r\n") }
func (AutoJoinSet) Timeout() time.Duration { return 10 * time.Second }
func (c AutoJoinSet) Encode(buf []byte) int {
	if !c.On {
		return appendLine(buf, "AT+JOIN=0\r\n")
	}
	return appendLine(buf, fmt.Sprintf("AT+JOIN=AUTO,%d\r\n", c.Interval))
}
func (AutoJoinSet) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+PORT / AT+RETRY / AT+RPT ------------------------------------------

// PortSet issues AT+PORT=<n>, the application port used by the next send.
type PortSet struct{ Port uint8 }

func (PortSet) Name() string   { return "PORT" }
func (PortSet) MaxLen() int    { return len("AT+PORT=255\r\n") }
func (PortSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c PortSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+PORT=%d\r\n", c.Port))
}
func (PortSet) Decode(body string) (Response, error) { return Ack{}, nil }

// RetrySet issues AT+RETRY=<n>, the confirmed-uplink retransmission count.
type RetrySet struct{ N uint8 }

func (RetrySet) Name() string   { return "RETRY" }
func (RetrySet) MaxLen() int    { return len("AT+RETRY=255\r\n") }
func (RetrySet) Timeout() time.Duration { return defaultReplyTimeout }
func (c RetrySet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+RETRY=%d\r\n", c.N))
}
func (RetrySet) Decode(body string) (Response, error) { return Ack{}, nil }

// RepeatSet issues AT+RPT=<n>, the unconfirmed-uplink repeat count.
type RepeatSet struct{ N uint8 }

func (RepeatSet) Name() string   { return "RPT" }
func (RepeatSet) MaxLen() int    { return len("AT+RPT=255\r\n") }
func (RepeatSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c RepeatSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+RPT=%d\r\n", c.N))
}
func (RepeatSet) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+MSGHEX / AT+CMSGHEX ------------------------------------------------

// MessageHexUnconfirmed sends an unconfirmed uplink as trimmed hex.
// MAX_LEN = hex_max(242 bytes) + 22, per spec §4.2.
type MessageHexUnconfirmed struct{ Payload []byte }

func (MessageHexUnconfirmed) Name() string { return "MSGHEX" }
func (MessageHexUnconfirmed) MaxLen() int  { return MaxPayloadLen*2 + 22 }
func (MessageHexUnconfirmed) Timeout() time.Duration { return defaultReplyTimeout }
func (c MessageHexUnconfirmed) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+MSGHEX=%s\r\n", encodePayloadHex(c.Payload)))
}
func (MessageHexUnconfirmed) Decode(body string) (Response, error) { return Ack{}, nil }

// MessageHexConfirmed sends a confirmed uplink as trimmed hex.
type MessageHexConfirmed struct{ Payload []byte }

func (MessageHexConfirmed) Name() string { return "CMSGHEX" }
func (MessageHexConfirmed) MaxLen() int  { return MaxPayloadLen*2 + 22 }
func (MessageHexConfirmed) Timeout() time.Duration { return defaultReplyTimeout }
func (c MessageHexConfirmed) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+CMSGHEX=%s\r\n", encodePayloadHex(c.Payload)))
}
func (MessageHexConfirmed) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+LW=ULDL -------------------------------------------------------------

// UplinkDownlinkCountersGet issues AT+LW=ULDL.
type UplinkDownlinkCountersGet struct{}

// UplinkDownlinkCounters is the typed reply: "+LW: ULDL, <up>, <down>".
type UplinkDownlinkCounters struct{ Up, Down uint32 }

func (UplinkDownlinkCountersGet) Name() string   { return "LW=ULDL" }
func (UplinkDownlinkCountersGet) MaxLen() int    { return len("AT+LW=ULDL\r\n") }
func (UplinkDownlinkCountersGet) Timeout() time.Duration { return defaultReplyTimeout }
func (UplinkDownlinkCountersGet) Encode(buf []byte) int {
	return appendLine(buf, "AT+LW=ULDL\r\n")
}

func (UplinkDownlinkCountersGet) Decode(body string) (Response, error) {
	_, rest, ok := splitTagBody(body)
	if !ok {
		rest = body
	}
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, errParse("malformed +LW:ULDL body: " + body)
	}
	var up, down uint32
	n, err := fmt.Sscanf(rest[comma+1:], "%d, %d", &up, &down)
	if err != nil || n != 2 {
		return nil, errParse("malformed +LW:ULDL body: " + body)
	}
	return UplinkDownlinkCounters{Up: up, Down: down}, nil
}

// --- AT+FDEFAULT / AT+RESET ------------------------------------------------

// FactoryReset issues the literal AT+FDEFAULT=Seeed. The reply shape is
// noisy, so the decoder always reports success (spec §4.2).
type FactoryReset struct{}

func (FactoryReset) Name() string   { return "FDEFAULT" }
func (FactoryReset) MaxLen() int    { return len("AT+FDEFAULT=Seeed\r\n") }
func (FactoryReset) Timeout() time.Duration { return 15 * time.Second }
func (FactoryReset) Encode(buf []byte) int { return appendLine(buf, "AT+FDEFAULT=Seeed\r\n") }
func (FactoryReset) Decode(body string) (Response, error) { return Ack{}, nil }

// ResetModem issues AT+RESET.
type ResetModem struct{}

func (ResetModem) Name() string   { return "RESET" }
func (ResetModem) MaxLen() int    { return len("AT+RESET\r\n") }
func (ResetModem) Timeout() time.Duration { return 5 * time.Second }
func (ResetModem) Encode(buf []byte) int { return appendLine(buf, "AT+RESET\r\n") }
func (ResetModem) Decode(body string) (Response, error) { return Ack{}, nil }

// --- AT+POWER ---------------------------------------------------------------

// PowerTable is the typed reply to PowerForceSet when the modem's reply
// carries a dBm value after a comma; PowerSet's reply decodes as Ack.
type PowerTable struct{ Dbm int8 }

// PowerSet issues AT+POWER=<dBm>.
type PowerSet struct{ Dbm int8 }

func (PowerSet) Name() string   { return "POWER" }
func (PowerSet) MaxLen() int    { return len("AT+POWER=-128\r\n") }
func (PowerSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c PowerSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+POWER=%d\r\n", c.Dbm))
}
func (PowerSet) Decode(body string) (Response, error) { return Ack{}, nil }

// PowerForceSet issues AT+POWER=FORCE,<dBm>, overriding regional power
// limits. The modem takes up to 30s to apply this (spec §4.2 override).
type PowerForceSet struct{ Dbm int8 }

func (PowerForceSet) Name() string   { return "POWER=FORCE" }
func (PowerForceSet) MaxLen() int    { return len("AT+POWER=FORCE,-128\r\n") }
func (PowerForceSet) Timeout() time.Duration { return 30 * time.Second }
func (c PowerForceSet) Encode(buf []byte) int {
	return appendLine(buf, fmt.Sprintf("AT+POWER=FORCE,%d\r\n", c.Dbm))
}

func (PowerForceSet) Decode(body string) (Response, error) {
	_, rest, ok := splitTagBody(body)
	if !ok {
		rest = body
	}
	if comma := strings.IndexByte(rest, ','); comma >= 0 {
		var dbm int
		if n, err := fmt.Sscanf(rest[comma+1:], "%d", &dbm); err == nil && n == 1 {
			return PowerTable{Dbm: int8(dbm)}, nil
		}
	}
	return Ack{}, nil
}

// --- AT+ADR -----------------------------------------------------------------

// AdrSet issues AT+ADR=ON/OFF. Like DataRateSet, spec.md documents the
// high-level client's adr_set as a local flag (no modem round trip); this
// shape exists for completeness and for advanced callers.
type AdrSet struct{ On bool }

func (AdrSet) Name() string   { return "ADR" }
func (AdrSet) MaxLen() int    { return len("AT+ADR=OFF\r\n") }
func (AdrSet) Timeout() time.Duration { return defaultReplyTimeout }
func (c AdrSet) Encode(buf []byte) int {
	v := "OFF"
	if c.On {
		v = "ON"
	}
	return appendLine(buf, fmt.Sprintf("AT+ADR=%s\r\n", v))
}
func (AdrSet) Decode(body string) (Response, error) { return Ack{}, nil }
