package lorae5

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Client is the high-level driver handle: an Arbiter for request/reply
// traffic, a Bus for latched and streamed events, and the ingress task
// that feeds both from the transport (spec §4.8).
type Client struct {
	id      uuid.UUID
	arbiter *Arbiter
	bus     *Bus
	cfg     Config

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	version     VersionTriple
	confirmSend bool
	adr         bool
	dataRate    uint8
}

// ID identifies this Client instance for the lifetime of the process,
// so a caller correlating join/send/recv calls across the monitor feed
// and the history log (both of which see only the modem's own output,
// never which client handle issued the request) has something to key
// on.
func (c *Client) ID() uuid.UUID { return c.id }

// Bus exposes the client's event bus (JOIN_STATUS, LAST_DOWNLINK, ...).
func (c *Client) Bus() *Bus { return c.bus }

// Version returns the firmware version read best-effort at New time.
func (c *Client) Version() VersionTriple {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// New builds a Client over transport. It verifies comms with a bare AT,
// ignoring one failure before retrying, up to 10 attempts total; on
// exhaustion it returns Error::Timeout. Firmware version is then read
// best-effort (a failure there is not fatal) (spec §4.8).
func New(ctx context.Context, transport Transport, cfg Config) (*Client, error) {
	if cfg.IngressBufSize <= 0 {
		cfg = mergeDefaults(cfg)
	}

	bus := NewBus(cfg.UrcChannelCapacity)
	arb := NewArbiter(transport, cfg)

	ingressCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:      uuid.New(),
		arbiter: arb,
		bus:     bus,
		cfg:     cfg,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.ingressLoop(ingressCtx, transport)

	var lastErr error
	joined := false
	for i := 0; i < 10; i++ {
		if _, err := arb.Send(ctx, CommCheck{}); err != nil {
			lastErr = err
			continue
		}
		joined = true
		break
	}
	if !joined {
		c.Close()
		if lastErr == nil {
			lastErr = errTimeout("no AT reply")
		}
		return nil, lastErr
	}

	if resp, err := arb.Send(ctx, VersionGet{}); err == nil {
		if v, ok := resp.(VersionTriple); ok {
			c.mu.Lock()
			c.version = v
			c.mu.Unlock()
		}
	}

	return c, nil
}

func mergeDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	if cfg.CmdCooldown <= 0 {
		cfg.CmdCooldown = def.CmdCooldown
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	if cfg.IngressBufSize <= 0 {
		cfg.IngressBufSize = def.IngressBufSize
	}
	if cfg.UrcChannelCapacity <= 0 {
		cfg.UrcChannelCapacity = def.UrcChannelCapacity
	}
	return cfg
}

// Close stops the ingress task. It does not close the transport, which
// the caller owns.
func (c *Client) Close() {
	c.cancel()
}

// ingressLoop reads bytes from transport, runs them through the digester,
// and dispatches each complete record to the arbiter's mailbox or the
// bus (spec §4.6 "Ingress task"). The buffer is capacity-bounded per
// Config.IngressBufSize; a run of bytes the digester can't yet classify
// never grows the buffer past that bound.
func (c *Client) ingressLoop(ctx context.Context, transport Transport) {
	bufSize := c.cfg.IngressBufSize
	if bufSize <= 0 {
		bufSize = DefaultConfig().IngressBufSize
	}
	chunk := make([]byte, bufSize)
	buf := make([]byte, 0, bufSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := transport.Read(ctx, chunk)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		buf = append(buf, chunk[:n]...)

		for {
			class, consumed := Digest(buf)
			if consumed == 0 {
				break
			}
			buf = buf[consumed:]
			switch class.Kind {
			case ClassResponseOk:
				c.arbiter.deliver(responseSlot{ok: true, body: class.Body})
			case ClassResponseErr:
				c.arbiter.deliver(responseSlot{ok: false, errCode: class.ErrCode})
			case ClassUrc:
				c.bus.Dispatch(class.Event)
			}
		}

		if len(buf) > bufSize {
			buf = append([]byte(nil), buf[len(buf)-bufSize:]...)
		}
	}
}

// --- configuration operations ----------------------------------------

func (c *Client) JoinModeSet(ctx context.Context, mode JoinMode) error {
	_, err := c.arbiter.Send(ctx, ModeSet{Mode: mode})
	return err
}

func (c *Client) DevEuiSet(ctx context.Context, value EUI64) error {
	_, err := c.arbiter.Send(ctx, DevEuiSet{Value: value})
	return err
}

func (c *Client) AppEuiSet(ctx context.Context, value EUI64) error {
	_, err := c.arbiter.Send(ctx, AppEuiSet{Value: value})
	return err
}

func (c *Client) AppKeySet(ctx context.Context, value AppKey) error {
	_, err := c.arbiter.Send(ctx, AppKeySet{Value: value})
	return err
}

func (c *Client) LoraRegionSet(ctx context.Context, region Region) error {
	_, err := c.arbiter.Send(ctx, RegionSet{Region: region})
	return err
}

func (c *Client) LoraClassSet(ctx context.Context, class Class) error {
	_, err := c.arbiter.Send(ctx, ClassSet{Class: class})
	return err
}

// AdrSet, DrSet and ConfirmSendSet are local flags the client caches —
// none of them hit the modem (spec §4.8). Send reads only the confirm
// flag; the cached ADR and data-rate values are not read by any
// operation.
func (c *Client) AdrSet(on bool) {
	c.mu.Lock()
	c.adr = on
	c.mu.Unlock()
}

func (c *Client) DrSet(dr uint8) error {
	if dr > 15 {
		return errInvalidArgument("data rate must be 0..=15")
	}
	c.mu.Lock()
	c.dataRate = dr
	c.mu.Unlock()
	return nil
}

func (c *Client) ConfirmSendSet(on bool) {
	c.mu.Lock()
	c.confirmSend = on
	c.mu.Unlock()
}

func (c *Client) AutoJoinSet(ctx context.Context, on bool, interval uint32) error {
	_, err := c.arbiter.Send(ctx, AutoJoinSet{On: on, Interval: interval})
	return err
}

// --- join -------------------------------------------------------------

// LoraJoinOtaaAndWaitForResult issues AT+JOIN and loops on JOIN_STATUS
// until a terminal value is observed, reissuing the join on every
// non-terminal wakeup (a "Join failed" URC leaves JOIN_STATUS at
// Joining — the modem is retrying on its own, per spec §4.4/S4 — so the
// client's own retry here is what eventually surfaces progress to a
// caller that only wants the final answer).
func (c *Client) LoraJoinOtaaAndWaitForResult(ctx context.Context) (JoinStatus, error) {
	for {
		if _, err := c.arbiter.Send(ctx, JoinOtaa{}); err != nil {
			return JoinUnknown, err
		}
		snap, err := c.bus.JoinStatus.Wait(ctx)
		if err != nil {
			return JoinUnknown, err
		}
		switch snap.Status {
		case JoinSuccess, JoinFailure, JoinNotJoined:
			return snap.Status, nil
		}
		select {
		case <-ctx.Done():
			return JoinUnknown, ctx.Err()
		default:
		}
	}
}

// --- data path ----------------------------------------------------------

// Send sets the application port and retry/repeat count from the cached
// confirm flag, then issues a confirmed or unconfirmed hex uplink. It
// never blocks waiting for a downlink (spec §4.8).
func (c *Client) Send(ctx context.Context, retransmissions uint8, port uint8, data []byte) error {
	if port == 0 {
		return errInvalidArgument("port must be in 1..=255")
	}
	if len(data) > MaxPayloadLen {
		return errInvalidArgument("payload exceeds 242 bytes")
	}
	if _, err := c.arbiter.Send(ctx, PortSet{Port: port}); err != nil {
		return err
	}

	c.mu.Lock()
	confirm := c.confirmSend
	c.mu.Unlock()

	if confirm {
		if _, err := c.arbiter.Send(ctx, RetrySet{N: retransmissions}); err != nil {
			return err
		}
		_, err := c.arbiter.Send(ctx, MessageHexConfirmed{Payload: data})
		return err
	}
	if _, err := c.arbiter.Send(ctx, RepeatSet{N: retransmissions}); err != nil {
		return err
	}
	_, err := c.arbiter.Send(ctx, MessageHexUnconfirmed{Payload: data})
	return err
}

// Receive waits for the next downlink payload and its quality record,
// resetting both slots (spec §4.8, invariant 6: payload latches strictly
// before quality for the same frame, so waiting in this order is safe).
func (c *Client) Receive(ctx context.Context) (DownlinkPayload, RxStats, error) {
	payload, err := c.bus.LastDownlink.Wait(ctx)
	if err != nil {
		return DownlinkPayload{}, RxStats{}, err
	}
	stats, err := c.bus.LastRxStats.Wait(ctx)
	if err != nil {
		return payload, RxStats{}, err
	}
	return payload, stats, nil
}

// --- counters & lifecycle -----------------------------------------------

func (c *Client) uplinkDownlinkCounters(ctx context.Context) (UplinkDownlinkCounters, error) {
	resp, err := c.arbiter.Send(ctx, UplinkDownlinkCountersGet{})
	if err != nil {
		return UplinkDownlinkCounters{}, err
	}
	counters, ok := resp.(UplinkDownlinkCounters)
	if !ok {
		return UplinkDownlinkCounters{}, errParse("unexpected +LW:ULDL reply shape")
	}
	return counters, nil
}

func (c *Client) UplinkFrameCount(ctx context.Context) (uint32, error) {
	counters, err := c.uplinkDownlinkCounters(ctx)
	return counters.Up, err
}

func (c *Client) DownlinkFrameCount(ctx context.Context) (uint32, error) {
	counters, err := c.uplinkDownlinkCounters(ctx)
	return counters.Down, err
}

// DownlinkMessageCount reads DOWNLINK_COUNT without blocking.
func (c *Client) DownlinkMessageCount() (uint32, bool) {
	return c.bus.DownlinkCount.TryValue()
}

func (c *Client) ResetModem(ctx context.Context) error {
	_, err := c.arbiter.Send(ctx, ResetModem{})
	return err
}

func (c *Client) FactoryReset(ctx context.Context) error {
	_, err := c.arbiter.Send(ctx, FactoryReset{})
	return err
}

func (c *Client) PowerForceSet(ctx context.Context, dbm int8) error {
	_, err := c.arbiter.Send(ctx, PowerForceSet{Dbm: dbm})
	return err
}
