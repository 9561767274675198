package lorae5

import (
	"context"
	"errors"
	"sync"
	"time"
)

// responseSlot is what the ingress task deposits into the arbiter's
// single-slot response mailbox (spec §3 "Response mailbox").
type responseSlot struct {
	ok      bool
	body    string
	errCode int
}

// Arbiter serialises command send + response wait over one Transport
// (spec §4.7). At most one command is in flight per Arbiter at a time.
type Arbiter struct {
	transport Transport
	cfg       Config

	sendMu  sync.Mutex // enforces at-most-one-in-flight end to end
	mailbox *Signal[responseSlot]

	lastMu   sync.Mutex
	lastSent time.Time
}

// NewArbiter wires an Arbiter to its transport and configuration.
func NewArbiter(transport Transport, cfg Config) *Arbiter {
	return &Arbiter{
		transport: transport,
		cfg:       cfg,
		mailbox:   NewSignal[responseSlot](),
	}
}

// deliver is called by the ingress task whenever the digester classifies
// a complete response (Ok or Err). It must never be called for URCs.
func (a *Arbiter) deliver(slot responseSlot) {
	a.mailbox.Set(slot)
}

// Send encodes cmd, writes it to the transport, and waits for the
// matching response (or times out). It honours cmd_cooldown between
// consecutive commands and never retries (spec §4.7).
func (a *Arbiter) Send(ctx context.Context, cmd Command) (Response, error) {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	a.waitCooldown()

	buf := make([]byte, cmd.MaxLen())
	n := cmd.Encode(buf)
	line := buf[:n]

	writeCtx, cancelWrite := context.WithTimeout(ctx, a.txTimeout())
	err := a.transport.Write(writeCtx, line)
	cancelWrite()
	a.markSent()
	if err != nil {
		if writeCtx.Err() != nil {
			return nil, errTimeout("transport write: " + cmd.Name())
		}
		return nil, err
	}

	// AT+JOIN's completion is entirely URC-driven: the immediate
	// "+JOIN: Start" line that follows is routed to the URC pipeline
	// exclusively (spec invariant: a URC reaches the mailbox or the URC
	// pipeline, never both), so the arbiter has nothing to wait for here.
	if _, isJoin := cmd.(JoinOtaa); isJoin {
		return Ack{}, nil
	}

	timeout := cmd.Timeout()
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
	defer cancelWait()

	slot, err := a.mailbox.Wait(waitCtx)
	if err != nil {
		// waitCtx is derived from the caller's ctx with an added deadline:
		// if the caller cancelled ctx directly the wrapped error is
		// context.Canceled, never DeadlineExceeded, regardless of which
		// deadline would have fired first. That's the only way to tell
		// "caller gave up" (Unavailable, spec §7) apart from "the reply
		// budget ran out" (Timeout).
		if errors.Is(err, context.Canceled) {
			return nil, errUnavailable(cmd.Name())
		}
		return nil, errTimeout(cmd.Name())
	}
	if !slot.ok {
		return nil, errCustomCode(slot.errCode, cmd.Name())
	}
	return cmd.Decode(slot.body)
}

func (a *Arbiter) txTimeout() time.Duration {
	if a.cfg.TxTimeout <= 0 {
		return DefaultConfig().TxTimeout
	}
	return a.cfg.TxTimeout
}

func (a *Arbiter) cooldown() time.Duration {
	if a.cfg.CmdCooldown <= 0 {
		return DefaultConfig().CmdCooldown
	}
	return a.cfg.CmdCooldown
}

func (a *Arbiter) waitCooldown() {
	a.lastMu.Lock()
	last := a.lastSent
	a.lastMu.Unlock()
	if last.IsZero() {
		return
	}
	if wait := a.cooldown() - time.Since(last); wait > 0 {
		time.Sleep(wait)
	}
}

func (a *Arbiter) markSent() {
	a.lastMu.Lock()
	a.lastSent = time.Now()
	a.lastMu.Unlock()
}
