package lorae5

import (
	"context"
	"testing"
	"time"
)

// blockingTransport accepts every write and never produces a reply; Read
// blocks until its context is cancelled. Used to exercise the arbiter's
// two distinct "gave up waiting" paths without a real modem.
type blockingTransport struct{}

func (blockingTransport) Write(ctx context.Context, p []byte) error { return nil }

func (blockingTransport) Read(ctx context.Context, p []byte) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// fakeCmd is a minimal Command for arbiter tests that never gets a
// matching reply.
type fakeCmd struct {
	timeout time.Duration
}

func (fakeCmd) Name() string                        { return "FAKE" }
func (fakeCmd) MaxLen() int                          { return len("AT+FAKE\r\n") }
func (c fakeCmd) Timeout() time.Duration             { return c.timeout }
func (fakeCmd) Encode(buf []byte) int                { return appendLine(buf, "AT+FAKE\r\n") }
func (fakeCmd) Decode(body string) (Response, error) { return Ack{}, nil }

func TestArbiterSendTimesOutOnExpiredBudget(t *testing.T) {
	arb := NewArbiter(blockingTransport{}, DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := arb.Send(ctx, fakeCmd{timeout: 20 * time.Millisecond})
	lerr, ok := err.(*Error)
	if !ok || lerr.Kind != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestArbiterSendReturnsUnavailableOnCallerCancellation(t *testing.T) {
	arb := NewArbiter(blockingTransport{}, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := arb.Send(ctx, fakeCmd{timeout: 2 * time.Second})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		lerr, ok := err.(*Error)
		if !ok || lerr.Kind != ErrUnavailable {
			t.Fatalf("err = %v, want ErrUnavailable", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not return after caller cancellation")
	}
}
