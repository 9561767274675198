package lorae5

import (
	"bytes"
	"strconv"
	"strings"
)

// ClassKind is the coarse category a digest() call assigns to the bytes it
// just consumed.
type ClassKind int

const (
	// ClassNone means the buffer holds no complete record yet; consumed
	// is always 0 in this case (prefix safety, spec §4.5/§8 invariant 1).
	ClassNone ClassKind = iota
	// ClassResponseOk is a complete, successful command response.
	ClassResponseOk
	// ClassResponseErr is a complete error response (custom ERROR(-n) or
	// the bare generic ERROR terminator).
	ClassResponseErr
	// ClassUrc is a complete, recognised unsolicited event.
	ClassUrc
	// ClassIgnored is a complete line the digester recognised as noise
	// (a stray duplicate OK, an unrecognised +TAG, or a URC line that
	// failed its own sub-grammar) — advanced past like ClassNone but
	// with a non-zero consumed count, so the ingress loop always makes
	// progress instead of spinning on garbage it can't classify twice.
	ClassIgnored
)

// Classification is the (class, consumed, payload) triple digest()
// returns for one attempt at the front of the buffer.
type Classification struct {
	Kind   ClassKind
	Body   string   // raw tag+body slice for ClassResponseOk/Err
	Event  UrcEvent // populated for ClassUrc
	ErrCode int     // populated for ClassResponseErr when a custom code was present
}

// customTags are the ~15 recognised "+TAG:" response envelopes (spec
// §4.5 step 4). JOIN/MSG/MSGHEX/CMSGHEX are URC prefixes, handled before
// this set is consulted, and RESET has its own NUL-terminated framing.
var customTags = map[string]bool{
	"VER": true, "MODE": true, "ID": true, "KEY": true, "DR": true,
	"CLASS": true, "PORT": true, "RETRY": true, "RPT": true, "LW": true,
	"POWER": true, "ADR": true, "FDEFAULT": true,
}

var urcTags = map[string]bool{
	"JOIN": true, "MSG": true, "MSGHEX": true, "CMSGHEX": true,
}

// customErrorCodes is the union of ERROR(-n) codes recognised across the
// historical drafts the spec reconciles (spec §9).
var customErrorCodes = map[int]bool{
	1: true, 2: true, 3: true, 5: true, 7: true, 10: true, 11: true,
	12: true, 20: true, 21: true, 22: true, 23: true, 24: true,
}

// Digest classifies the front of input without ever consuming bytes that
// do not yet form a complete record (spec §4.5). It is pure: the same
// input always yields the same result, and state lives entirely in the
// caller's buffer (spec invariant 2, idempotence).
func Digest(input []byte) (Classification, int) {
	if len(input) == 0 {
		return Classification{Kind: ClassNone}, 0
	}

	if bytes.HasPrefix(input, []byte("OK\r\n")) {
		// A second OK\r\n immediately following means the first was a
		// stray duplicate ack; the real terminator is the second one.
		// See DESIGN.md for why the literal "stray OK" rule (spec §4.5
		// step 1) is resolved this way rather than dropping every bare
		// OK, which would make a tag-less command (plain "AT") never
		// resolve.
		if bytes.HasPrefix(input[4:], []byte("OK\r\n")) {
			return Classification{Kind: ClassIgnored}, 4
		}
		return Classification{Kind: ClassResponseOk, Body: ""}, 4
	}

	if bytes.HasPrefix(input, []byte("ERROR\r\n")) {
		return Classification{Kind: ClassResponseErr}, len("ERROR\r\n")
	}

	if input[0] != '+' {
		return Classification{Kind: ClassNone}, 0
	}

	if bytes.HasPrefix(input, []byte("+RESET:")) {
		term := []byte("\r\n\x00")
		idx := bytes.Index(input, term)
		if idx < 0 {
			return Classification{Kind: ClassNone}, 0
		}
		body := strings.TrimPrefix(string(input[len("+RESET:"):idx]), " ")
		return Classification{Kind: ClassResponseOk, Body: "RESET: " + body}, idx + len(term)
	}

	nl := bytes.Index(input, []byte("\r\n"))
	if nl < 0 {
		return Classification{Kind: ClassNone}, 0
	}
	line := string(input[:nl])
	consumedLine := nl + 2

	tag, body, ok := splitTagBody(line[1:]) // strip leading '+'
	if !ok {
		return Classification{Kind: ClassIgnored}, consumedLine
	}

	if urcTags[tag] {
		event, err := parseUrc(tag, body)
		if err != nil {
			// Ingress parse errors on URCs are swallowed (spec §7).
			return Classification{Kind: ClassIgnored}, consumedLine
		}
		return Classification{Kind: ClassUrc, Event: event}, consumedLine
	}

	if !customTags[tag] {
		return Classification{Kind: ClassIgnored}, consumedLine
	}

	if strings.HasPrefix(body, "ERROR") {
		// Either a recognised "ERROR(-N)" envelope, or a malformed/
		// out-of-range one (e.g. "ERROR" with no parens, or an N outside
		// customErrorCodes) — both fail the command (spec §4.5 step 6's
		// generic error path), they just differ in whether ErrCode is
		// populated.
		code, _ := parseErrorCode(body)
		return Classification{Kind: ClassResponseErr, ErrCode: code, Body: tag + ": " + body}, consumedLine
	}

	consumed := consumedLine
	if bytes.HasPrefix(input[consumed:], []byte("OK\r\n")) {
		consumed += 4
	}
	return Classification{Kind: ClassResponseOk, Body: tag + ": " + body}, consumed
}

// parseErrorCode recognises "ERROR(-N)" bodies for N in customErrorCodes.
func parseErrorCode(body string) (int, bool) {
	const prefix = "ERROR(-"
	if !strings.HasPrefix(body, prefix) || !strings.HasSuffix(body, ")") {
		return 0, false
	}
	digits := body[len(prefix) : len(body)-1]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	if !customErrorCodes[n] {
		return 0, false
	}
	return n, true
}
