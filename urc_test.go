package lorae5

import "testing"

func digestAllUrcs(t *testing.T, wire string) []UrcEvent {
	t.Helper()
	var events []UrcEvent
	buf := []byte(wire)
	for len(buf) > 0 {
		class, consumed := Digest(buf)
		if consumed == 0 {
			break
		}
		if class.Kind == ClassUrc {
			events = append(events, class.Event)
		}
		buf = buf[consumed:]
	}
	return events
}

func TestS3Join(t *testing.T) {
	wire := "+JOIN: Start\r\n+JOIN: NORMAL\r\n+JOIN: NetID 000013 DevAddr 26:01:1B:8A\r\n+JOIN: Network joined\r\n+JOIN: Done\r\nOK\r\n"
	events := digestAllUrcs(t, wire)
	if len(events) != 5 {
		t.Fatalf("got %d URC events, want 5: %+v", len(events), events)
	}

	bus := NewBus(0)
	for _, e := range events {
		bus.Dispatch(e)
	}
	snap, ok := bus.JoinStatus.TryValue()
	if !ok || snap.Status != JoinSuccess || snap.NetID != "000013" || snap.DevAddr != "26:01:1B:8A" {
		t.Fatalf("join snapshot = %+v, ok=%v", snap, ok)
	}
}

func TestS4JoinFailedThenRetry(t *testing.T) {
	wire := "+JOIN: Start\r\n+JOIN: Join failed\r\n+JOIN: Done\r\nOK\r\n"
	events := digestAllUrcs(t, wire)
	bus := NewBus(0)
	for _, e := range events {
		bus.Dispatch(e)
	}
	snap, ok := bus.JoinStatus.TryValue()
	if !ok || snap.Status != JoinJoining {
		t.Fatalf("join snapshot = %+v, ok=%v, want Joining", snap, ok)
	}
}

func TestS5SendConfirmed(t *testing.T) {
	wire := "+CMSGHEX: Start\r\n+CMSGHEX: Wait ACK\r\n+CMSGHEX: ACK Received\r\n+CMSGHEX: RXWIN1, RSSI -95, SNR 7.5\r\n+CMSGHEX: Done\r\nOK\r\n"
	events := digestAllUrcs(t, wire)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	last := events[3].(SendProgressEvent)
	if last.Stage != SendRxQuality || last.Quality != (RxStats{Rxwin: 1, Rssi: -95, Snr: 7.5}) {
		t.Fatalf("quality event = %+v", last)
	}

	bus := NewBus(0)
	for _, e := range events {
		bus.Dispatch(e)
	}
	stats, ok := bus.LastRxStats.TryValue()
	if !ok || stats != (RxStats{Rxwin: 1, Rssi: -95, Snr: 7.5}) {
		t.Fatalf("LAST_RX_STATS = %+v, ok=%v", stats, ok)
	}
}

func TestS6Downlink(t *testing.T) {
	wire := "+MSG: PORT: 5; RX: \"48656C6C6F\"\r\n+MSG: RXWIN2, RSSI -101, SNR 3.2\r\n+MSG: Done\r\nOK\r\n"
	events := digestAllUrcs(t, wire)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	bus := NewBus(0)
	for _, e := range events {
		bus.Dispatch(e)
	}
	payload, ok := bus.LastDownlink.TryValue()
	if !ok || payload.Port != 5 || payload.Length != 5 || string(payload.Bytes()) != "Hello" {
		t.Fatalf("downlink = %+v, ok=%v", payload, ok)
	}
	stats, ok := bus.LastRxStats.TryValue()
	if !ok || stats != (RxStats{Rxwin: 2, Rssi: -101, Snr: 3.2}) {
		t.Fatalf("stats = %+v, ok=%v", stats, ok)
	}
	count, ok := bus.DownlinkCount.TryValue()
	if !ok || count != 1 {
		t.Fatalf("DOWNLINK_COUNT = %d, ok=%v", count, ok)
	}
}

func TestDownlinkOrderingWithinOneBurst(t *testing.T) {
	// Invariant 6: LAST_DOWNLINK latches strictly before LAST_RX_STATS
	// for the same frame.
	wire := "+MSG: PORT: 1; RX: \"AA\"\r\n+MSG: RXWIN1, RSSI -90, SNR 1.0\r\n"
	var order []string
	buf := []byte(wire)
	for len(buf) > 0 {
		class, consumed := Digest(buf)
		if consumed == 0 {
			break
		}
		switch ev := class.Event.(type) {
		case DownlinkPayloadEvent:
			order = append(order, "payload")
			_ = ev
		case DownlinkQualityEvent:
			order = append(order, "quality")
		}
		buf = buf[consumed:]
	}
	if len(order) != 2 || order[0] != "payload" || order[1] != "quality" {
		t.Fatalf("order = %v, want [payload quality]", order)
	}
}

func TestDownlinkCountSaturatingWrap(t *testing.T) {
	bus := NewBus(0)
	bus.count = ^uint32(0) // force to MAX for the wrap test
	bus.Dispatch(DownlinkPayloadEvent{Payload: DownlinkPayload{Port: 1, Length: 0}})
	count, ok := bus.DownlinkCount.TryValue()
	if !ok || count != 0 {
		t.Fatalf("DOWNLINK_COUNT after wrap = %d, ok=%v, want 0", count, ok)
	}
}

func TestParseMsgOddNibblePayload(t *testing.T) {
	ev, err := parseMsg(`PORT: 9; RX: "ABC"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d := ev.(DownlinkPayloadEvent).Payload
	if d.Length != 2 || d.Bytes()[0] != 0xAB || d.Bytes()[1] != 0xC0 {
		t.Fatalf("odd-nibble payload = % X, length=%d", d.Bytes(), d.Length)
	}
}

func TestParseJoinRejectsUnrecognised(t *testing.T) {
	if _, err := parseJoin("Something Else"); err == nil {
		t.Fatal("expected parse error for unrecognised +JOIN body")
	}
}
