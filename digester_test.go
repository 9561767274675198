package lorae5

import "testing"

func TestDigestPrefixSafety(t *testing.T) {
	record := []byte("+VER: 5.0.11\r\nOK\r\n")
	for k := 0; k < len(record); k++ {
		class, consumed := Digest(record[:k])
		if consumed != 0 || class.Kind != ClassNone {
			t.Fatalf("prefix of length %d: got (kind=%v, consumed=%d), want (None, 0)", k, class.Kind, consumed)
		}
	}
}

func TestDigestIdempotence(t *testing.T) {
	input := []byte("+MODE: LWOTAA\r\nOK\r\ntrailing")
	c1, n1 := Digest(input)
	c2, n2 := Digest(input)
	if n1 != n2 || c1.Kind != c2.Kind || c1.Body != c2.Body {
		t.Fatalf("repeated digest diverged: (%v,%d) vs (%v,%d)", c1, n1, c2, n2)
	}
}

func TestDigestExactFraming(t *testing.T) {
	record := "+VER: 5.0.11\r\nOK\r\n"
	trailer := "AT+VER\r\n"
	class, consumed := Digest([]byte(record + trailer))
	if consumed != len(record) {
		t.Fatalf("consumed = %d, want %d", consumed, len(record))
	}
	if class.Kind != ClassResponseOk {
		t.Fatalf("kind = %v, want ClassResponseOk", class.Kind)
	}
}

func TestDigestS1Version(t *testing.T) {
	class, consumed := Digest([]byte("+VER: 5.0.11\r\nOK\r\n"))
	if class.Kind != ClassResponseOk || consumed != len("+VER: 5.0.11\r\nOK\r\n") {
		t.Fatalf("got (%v, %d)", class.Kind, consumed)
	}
	resp, err := VersionGet{}.Decode(class.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v := resp.(VersionTriple)
	if v != (VersionTriple{5, 0, 11}) {
		t.Fatalf("version = %+v", v)
	}
}

func TestDigestS2ModeSet(t *testing.T) {
	class, consumed := Digest([]byte("+MODE: LWOTAA\r\nOK\r\n"))
	if class.Kind != ClassResponseOk || consumed != len("+MODE: LWOTAA\r\nOK\r\n") {
		t.Fatalf("got (%v, %d)", class.Kind, consumed)
	}
	resp, err := ModeSet{}.Decode(class.Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.(ModeReply).Mode != ModeOTAA {
		t.Fatalf("mode = %+v", resp)
	}
}

func TestDigestBareAtAck(t *testing.T) {
	class, consumed := Digest([]byte("OK\r\n"))
	if class.Kind != ClassResponseOk || consumed != 4 {
		t.Fatalf("got (%v, %d), want (ClassResponseOk, 4)", class.Kind, consumed)
	}
}

func TestDigestStrayOkDropped(t *testing.T) {
	class, consumed := Digest([]byte("OK\r\nOK\r\n"))
	if class.Kind != ClassIgnored || consumed != 4 {
		t.Fatalf("got (%v, %d), want (ClassIgnored, 4)", class.Kind, consumed)
	}
	class2, consumed2 := Digest([]byte("OK\r\n"))
	if class2.Kind != ClassResponseOk || consumed2 != 4 {
		t.Fatalf("second OK got (%v, %d)", class2.Kind, consumed2)
	}
}

func TestDigestJoinStartBeforeOk(t *testing.T) {
	class, consumed := Digest([]byte("+JOIN: Start\r\n+JOIN: NORMAL\r\n"))
	if class.Kind != ClassUrc {
		t.Fatalf("kind = %v, want ClassUrc", class.Kind)
	}
	if consumed != len("+JOIN: Start\r\n") {
		t.Fatalf("consumed = %d, want only the Start line", consumed)
	}
	ev, ok := class.Event.(JoinEvent)
	if !ok || ev.State != JoinStart {
		t.Fatalf("event = %+v", class.Event)
	}
}

func TestDigestCustomErrorCode(t *testing.T) {
	class, consumed := Digest([]byte("+KEY: ERROR(-5)\r\n"))
	if class.Kind != ClassResponseErr || class.ErrCode != 5 {
		t.Fatalf("got (%v, code=%d)", class.Kind, class.ErrCode)
	}
	if consumed != len("+KEY: ERROR(-5)\r\n") {
		t.Fatalf("consumed = %d", consumed)
	}
}

func TestDigestGenericErrorTerminator(t *testing.T) {
	class, consumed := Digest([]byte("ERROR\r\n"))
	if class.Kind != ClassResponseErr || class.ErrCode != 0 {
		t.Fatalf("got (%v, code=%d)", class.Kind, class.ErrCode)
	}
	if consumed != len("ERROR\r\n") {
		t.Fatalf("consumed = %d", consumed)
	}
}

func TestDigestResetNulTerminator(t *testing.T) {
	record := []byte("+RESET: some noisy preamble\r\n\x00")
	for k := 0; k < len(record); k++ {
		class, consumed := Digest(record[:k])
		if consumed != 0 || class.Kind != ClassNone {
			t.Fatalf("prefix length %d: got (%v, %d), want (None, 0)", k, class.Kind, consumed)
		}
	}
	class, consumed := Digest(record)
	if class.Kind != ClassResponseOk || consumed != len(record) {
		t.Fatalf("got (%v, %d)", class.Kind, consumed)
	}
}

func TestDigestUnrecognisedTagIsIgnoredNotStuck(t *testing.T) {
	class, consumed := Digest([]byte("+WEIRD: whatever\r\nOK\r\n"))
	if class.Kind != ClassIgnored || consumed != len("+WEIRD: whatever\r\n") {
		t.Fatalf("got (%v, %d)", class.Kind, consumed)
	}
}

func TestDigestMalformedErrorBodyOnCustomTag(t *testing.T) {
	class, consumed := Digest([]byte("+KEY: ERROR\r\n"))
	if class.Kind != ClassResponseErr || class.ErrCode != 0 {
		t.Fatalf("got (%v, code=%d), want (ClassResponseErr, 0)", class.Kind, class.ErrCode)
	}
	if consumed != len("+KEY: ERROR\r\n") {
		t.Fatalf("consumed = %d", consumed)
	}
}

func TestDigestOutOfRangeErrorCodeOnCustomTag(t *testing.T) {
	class, consumed := Digest([]byte("+KEY: ERROR(-999)\r\n"))
	if class.Kind != ClassResponseErr || class.ErrCode != 0 {
		t.Fatalf("got (%v, code=%d), want (ClassResponseErr, 0)", class.Kind, class.ErrCode)
	}
	if consumed != len("+KEY: ERROR(-999)\r\n") {
		t.Fatalf("consumed = %d", consumed)
	}
}
