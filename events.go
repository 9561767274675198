package lorae5

import (
	"context"
	"sync"
)

// Signal is a latching single-slot mailbox: the last value written wins,
// wait() drains it (one-shot), and a missed value between two waits is
// simply gone (spec §3 Lifecycles, §9 "Global latching signals" — this
// is deliberately not a channel, which would not give last-value-wins).
type Signal[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	value   T
	present bool
}

// NewSignal returns an empty, unlatched signal.
func NewSignal[T any]() *Signal[T] {
	s := &Signal[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Set stores v, overwriting any previously-latched value that was not yet
// read, and wakes every waiter.
func (s *Signal[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.present = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Wait returns the latched value, clearing the slot, or blocks until the
// next Set. Cancelling ctx leaves the slot untouched (spec §5).
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.present {
		if ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}
		s.cond.Wait()
	}
	v := s.value
	s.present = false
	var zero T
	s.value = zero
	return v, nil
}

// TryValue is a non-blocking peek that does not consume the slot.
func (s *Signal[T]) TryValue() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.present
}

// Reset clears the slot without returning its value.
func (s *Signal[T]) Reset() {
	s.mu.Lock()
	s.present = false
	var zero T
	s.value = zero
	s.mu.Unlock()
}

// Bus is the fixed set of process-wide latching signals the ingress task
// writes and client operations read (spec §4.6). One Bus per Client.
type Bus struct {
	JoinStatus    *Signal[JoinSnapshot]
	LastDownlink  *Signal[DownlinkPayload]
	LastRxStats   *Signal[RxStats]
	DownlinkCount *Signal[uint32]

	mu      sync.Mutex
	count   uint32
	urcCh   chan UrcEvent
	lagMu   sync.Mutex
	lagCount uint64
}

// NewBus constructs a Bus with a URC channel of the given capacity (spec
// default 40; values ≤ 0 fall back to the default).
func NewBus(urcCapacity int) *Bus {
	if urcCapacity <= 0 {
		urcCapacity = 40
	}
	return &Bus{
		JoinStatus:    NewSignal[JoinSnapshot](),
		LastDownlink:  NewSignal[DownlinkPayload](),
		LastRxStats:   NewSignal[RxStats](),
		DownlinkCount: NewSignal[uint32](),
		urcCh:         make(chan UrcEvent, urcCapacity),
	}
}

// LagCount reports how many URC-channel events have been dropped because
// a subscriber was not draining the channel fast enough.
func (b *Bus) LagCount() uint64 {
	b.lagMu.Lock()
	defer b.lagMu.Unlock()
	return b.lagCount
}

// Events returns the read side of the URC channel for subscribers (e.g.
// the ZeroMQ exporter or the WebSocket monitor) that want every event,
// not just the latched last-value-wins signals.
func (b *Bus) Events() <-chan UrcEvent { return b.urcCh }

// publish pushes a raw URC onto the fan-out channel, dropping the oldest
// unread event on overflow and recording the drop (spec §4.6).
func (b *Bus) publish(e UrcEvent) {
	select {
	case b.urcCh <- e:
	default:
		select {
		case <-b.urcCh:
			b.lagMu.Lock()
			b.lagCount++
			b.lagMu.Unlock()
		default:
		}
		select {
		case b.urcCh <- e:
		default:
		}
	}
}

// Dispatch applies a parsed URC's side effects to the bus signals
// (spec §4.4's state-transition table) and publishes it on the URC
// channel for any subscriber. It is called exclusively from the ingress
// task (spec §9: "the ingress task owns the parsers").
func (b *Bus) Dispatch(e UrcEvent) {
	switch ev := e.(type) {
	case JoinEvent:
		switch ev.State {
		case JoinStart:
			b.JoinStatus.Set(JoinSnapshot{Status: JoinJoining})
		case JoinFailed:
			// "this attempt failed" is not "giving up": the modem
			// retries on its own, so status stays Joining (spec §4.4).
			b.JoinStatus.Set(JoinSnapshot{Status: JoinJoining})
		case JoinAlreadyJoined, JoinNetworkJoined:
			// Keep the NetID/DevAddr a preceding "NetID ..." line latched.
			prev, _ := b.JoinStatus.TryValue()
			b.JoinStatus.Set(JoinSnapshot{Status: JoinSuccess, NetID: prev.NetID, DevAddr: prev.DevAddr})
		case JoinSuccessState:
			b.JoinStatus.Set(JoinSnapshot{Status: JoinSuccess, NetID: ev.NetID, DevAddr: ev.DevAddr})
		}
	case DownlinkPayloadEvent:
		b.LastDownlink.Set(ev.Payload)
		b.mu.Lock()
		b.count++ // wraps naturally: uint32 addition overflows to 0
		n := b.count
		b.mu.Unlock()
		b.DownlinkCount.Set(n)
	case DownlinkQualityEvent:
		b.LastRxStats.Set(ev.Quality)
	case SendProgressEvent:
		if ev.Stage == SendRxQuality {
			b.LastRxStats.Set(ev.Quality)
		}
	}
	b.publish(e)
}
