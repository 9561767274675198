package lorae5

import (
	"fmt"
	"strings"
)

// HexOptions controls ASCII hex formatting of a HexField value. It is the
// canonical representation for EUI64, AppKey, DevAddr and hex payloads up
// to MaxPayloadLen bytes.
type HexOptions struct {
	Uppercase             bool
	Prefix0x              bool
	GroupEveryNNibbles    int  // 0 disables grouping
	GroupDelimiter        byte // used when GroupEveryNNibbles > 0
	TrimTrailingZeroBytes bool // send-only: omit trailing zero bytes of a fixed-length payload
}

const hexDigits = "0123456789abcdef"
const hexDigitsUpper = "0123456789ABCDEF"

// EncodeHex renders data as ASCII hex per opts. TrimTrailingZeroBytes only
// ever affects the bytes written, never how a decoder interprets them —
// decoders must not rely on length to re-pad (spec §4.1).
func EncodeHex(data []byte, opts HexOptions) string {
	if opts.TrimTrailingZeroBytes {
		end := len(data)
		for end > 0 && data[end-1] == 0 {
			end--
		}
		data = data[:end]
	}

	table := hexDigits
	if opts.Uppercase {
		table = hexDigitsUpper
	}

	var b strings.Builder
	if opts.Prefix0x {
		b.WriteString("0x")
	}

	nibbles := 0
	for _, by := range data {
		for _, nib := range [2]byte{by >> 4, by & 0x0f} {
			if opts.GroupEveryNNibbles > 0 && nibbles > 0 && nibbles%opts.GroupEveryNNibbles == 0 {
				b.WriteByte(opts.GroupDelimiter)
			}
			b.WriteByte(table[nib])
			nibbles++
		}
	}
	return b.String()
}

// DecodeHex parses ASCII hex accepting an optional "0x" prefix and any
// whitespace/separator layout (group delimiters, spaces, colons). An odd
// number of hex digits is accepted: the final nibble is treated as the
// high nibble of the final byte (spec §4.4, §9).
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")

	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
			digits = append(digits, c)
		case c == ' ', c == ':', c == '-', c == '_', c == '.', c == ',':
			continue
		default:
			return nil, errParse(fmt.Sprintf("invalid hex character %q", c))
		}
	}

	if len(digits)%2 != 0 {
		digits = append(digits, '0')
	}

	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, err := nibble(digits[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := nibble(digits[2*i+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func nibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, errParse(fmt.Sprintf("invalid hex digit %q", c))
	}
}

// HexString renders the EUI as colon-grouped uppercase hex, e.g.
// "26:01:1B:8A:00:00:00:01".
func (e EUI64) HexString() string {
	return EncodeHex(e[:], HexOptions{Uppercase: true, GroupEveryNNibbles: 2, GroupDelimiter: ':'})
}

// ParseEUI64 parses a hex EUI in any of DecodeHex's accepted layouts.
func ParseEUI64(s string) (EUI64, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return EUI64{}, err
	}
	if len(b) != 8 {
		return EUI64{}, errParse(fmt.Sprintf("EUI64 needs 8 bytes, got %d", len(b)))
	}
	var e EUI64
	copy(e[:], b)
	return e, nil
}

// HexString renders the key as plain lowercase hex with trailing zero
// bytes trimmed, the on-wire AT+KEY=APPKEY,<hex> form.
func (k AppKey) HexString() string {
	return EncodeHex(k[:], HexOptions{TrimTrailingZeroBytes: true})
}

// HexString renders the address as colon-grouped uppercase hex, matching
// the modem's own "+JOIN: NetID ... DevAddr 26:01:1B:8A" rendering.
func (a DevAddr) HexString() string {
	return EncodeHex(a[:], HexOptions{Uppercase: true, GroupEveryNNibbles: 2, GroupDelimiter: ':'})
}

// ParseDevAddr parses a colon- or bare-hex device address.
func ParseDevAddr(s string) (DevAddr, error) {
	b, err := DecodeHex(s)
	if err != nil {
		return DevAddr{}, err
	}
	if len(b) != 4 {
		return DevAddr{}, errParse(fmt.Sprintf("DevAddr needs 4 bytes, got %d", len(b)))
	}
	var a DevAddr
	copy(a[:], b)
	return a, nil
}

// encodePayloadHex renders an application payload as plain lowercase hex
// for AT+MSGHEX=/AT+CMSGHEX=, with trailing zero bytes trimmed.
func encodePayloadHex(data []byte) string {
	return EncodeHex(data, HexOptions{TrimTrailingZeroBytes: true})
}

// decodePayloadHex parses a +MSG:/+MSGHEX: hex payload into a fixed
// 243-byte buffer, honoring the odd-nibble left-pad rule.
func decodePayloadHex(s string) (buf [MaxPayloadLen + 1]byte, n int, err error) {
	b, err := DecodeHex(s)
	if err != nil {
		return buf, 0, err
	}
	if len(b) > len(buf) {
		return buf, 0, errCapacity(fmt.Sprintf("downlink payload %d bytes exceeds %d", len(b), len(buf)))
	}
	copy(buf[:], b)
	return buf, len(b), nil
}
