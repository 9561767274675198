package lorae5

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptedTransport is a fake in-memory modem: writing a known command
// line enqueues its canned reply bytes for the next Read, the same shape
// as the teacher's MockLoRaDriver.
type scriptedTransport struct {
	mu      sync.Mutex
	replies map[string]string
	pending []byte
	notify  chan struct{}
}

func newScriptedTransport(replies map[string]string) *scriptedTransport {
	return &scriptedTransport{replies: replies, notify: make(chan struct{}, 1)}
}

func (s *scriptedTransport) Write(ctx context.Context, p []byte) error {
	s.mu.Lock()
	if reply, ok := s.replies[string(p)]; ok {
		s.pending = append(s.pending, []byte(reply)...)
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *scriptedTransport) Read(ctx context.Context, buf []byte) (int, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			n := copy(buf, s.pending)
			s.pending = s.pending[n:]
			s.mu.Unlock()
			return n, nil
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.notify:
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func newTestClient(t *testing.T, extra map[string]string) (*Client, *scriptedTransport) {
	t.Helper()
	replies := map[string]string{
		"AT\r\n":    "OK\r\n",
		"AT+VER\r\n": "+VER: 5.0.11\r\nOK\r\n",
	}
	for k, v := range extra {
		replies[k] = v
	}
	transport := newScriptedTransport(replies)
	cfg := DefaultConfig()
	cfg.CmdCooldown = 0
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := New(ctx, transport, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, transport
}

func TestClientNewReadsVersion(t *testing.T) {
	c, _ := newTestClient(t, nil)
	if v := c.Version(); v != (VersionTriple{5, 0, 11}) {
		t.Fatalf("version = %+v", v)
	}
}

func TestClientJoinModeSet(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"AT+MODE=LWOTAA\r\n": "+MODE: LWOTAA\r\nOK\r\n",
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.JoinModeSet(ctx, ModeOTAA); err != nil {
		t.Fatalf("JoinModeSet: %v", err)
	}
}

func TestClientJoinOtaaAndWaitForResult(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"AT+JOIN\r\n": "+JOIN: Start\r\n+JOIN: NORMAL\r\n+JOIN: NetID 000013 DevAddr 26:01:1B:8A\r\n+JOIN: Network joined\r\n+JOIN: Done\r\nOK\r\n",
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := c.LoraJoinOtaaAndWaitForResult(ctx)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if status != JoinSuccess {
		t.Fatalf("status = %v, want Success", status)
	}
}

func TestClientSendConfirmed(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"AT+PORT=12\r\n":       "+PORT: 12\r\nOK\r\n",
		"AT+RETRY=3\r\n":       "+RETRY: 3\r\nOK\r\n",
		"AT+CMSGHEX=deadbe\r\n": "OK\r\n",
	})
	c.ConfirmSendSet(true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Send(ctx, 3, 12, []byte{0xDE, 0xAD, 0xBE}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestClientSendRejectsOversizedPayload(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Send(ctx, 0, 1, make([]byte, MaxPayloadLen+1))
	if err == nil {
		t.Fatal("expected InvalidArgument")
	}
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrInvalidArgument {
		t.Fatalf("err = %v", err)
	}
}

func TestClientSendRejectsPortZero(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Send(ctx, 0, 0, []byte{1})
	if err == nil {
		t.Fatal("expected InvalidArgument")
	}
}

func TestClientReceiveDownlink(t *testing.T) {
	c, transport := newTestClient(t, nil)
	go func() {
		// Unsolicited modem output: queue it for Read directly, since
		// Write only enqueues canned replies to known command lines.
		transport.mu.Lock()
		transport.pending = append(transport.pending, []byte("+MSG: PORT: 5; RX: \"48656C6C6F\"\r\n+MSG: RXWIN2, RSSI -101, SNR 3.2\r\n+MSG: Done\r\nOK\r\n")...)
		transport.mu.Unlock()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, stats, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if payload.Port != 5 || string(payload.Bytes()) != "Hello" {
		t.Fatalf("payload = %+v", payload)
	}
	if stats != (RxStats{Rxwin: 2, Rssi: -101, Snr: 3.2}) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestClientUplinkDownlinkCounters(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"AT+LW=ULDL\r\n": "+LW: ULDL, 3, 7\r\nOK\r\n",
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	up, err := c.UplinkFrameCount(ctx)
	if err != nil || up != 3 {
		t.Fatalf("up = %d, err = %v", up, err)
	}
	down, err := c.DownlinkFrameCount(ctx)
	if err != nil || down != 7 {
		t.Fatalf("down = %d, err = %v", down, err)
	}
}

func TestClientNewTimesOutWithoutAnyAck(t *testing.T) {
	transport := newScriptedTransport(nil)
	cfg := DefaultConfig()
	cfg.CmdCooldown = 0
	cfg.TxTimeout = 20 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := New(ctx, transport, cfg); err == nil {
		t.Fatal("expected Timeout error")
	}
}
