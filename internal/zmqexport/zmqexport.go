// Package zmqexport republishes the driver's event bus onto a ZeroMQ PUB
// socket, two-frame messages of (event-type-name, JSON payload), the same
// shape the teacher's Concentratord driver consumes on its SUB side
// (internal/lora/concentratord.go's eventLoop) — here inverted into the
// publisher role.
package zmqexport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-zeromq/zmq4"

	lorae5 "github.com/agsys/lora-e5-driver"
)

// Exporter owns a PUB socket and republishes lorae5 URCs onto it.
type Exporter struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
}

// Listen binds a PUB socket at endpoint (e.g. "tcp://*:5556" or
// "ipc:///tmp/lorae5_events").
func Listen(endpoint string) (*Exporter, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		cancel()
		return nil, fmt.Errorf("zmqexport: listen %s: %w", endpoint, err)
	}
	return &Exporter{sock: sock, cancel: cancel}, nil
}

// Close stops publishing and releases the socket.
func (e *Exporter) Close() error {
	e.cancel()
	return e.sock.Close()
}

// Run drains bus.Events() until ctx is cancelled, publishing each URC.
func (e *Exporter) Run(ctx context.Context, bus *lorae5.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-bus.Events():
			if !ok {
				return
			}
			if err := e.publish(ev); err != nil {
				log.Printf("zmqexport: publish failed: %v", err)
			}
		}
	}
}

func (e *Exporter) publish(ev lorae5.UrcEvent) error {
	name, payload := describe(ev)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("zmqexport: marshal %s: %w", name, err)
	}
	msg := zmq4.NewMsgFrom([]byte(name), body)
	return e.sock.Send(msg)
}

func describe(ev lorae5.UrcEvent) (string, any) {
	switch v := ev.(type) {
	case lorae5.JoinEvent:
		return "join", v
	case lorae5.SendProgressEvent:
		return "send_progress", v
	case lorae5.DownlinkPayloadEvent:
		return "downlink_payload", map[string]any{
			"port":    v.Payload.Port,
			"length":  v.Payload.Length,
			"payload": v.Payload.Bytes(),
		}
	case lorae5.DownlinkQualityEvent:
		return "downlink_quality", v.Quality
	case lorae5.DownlinkDoneEvent:
		return "downlink_done", struct{}{}
	case lorae5.DownlinkFramePendingEvent:
		return "downlink_frame_pending", struct{}{}
	default:
		return "unknown", nil
	}
}
