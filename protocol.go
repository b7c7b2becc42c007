// Package shipproxy provides the shared pieces of the ship/offshore proxy pair.
// It defines the framed tunnel channel both sides speak and the synthesized
// HTTP responses either side answers with when something goes wrong.
package shipproxy

import (
	"errors"
	"time"
)

// Origin timeouts used by the offshore relay.
const (
	ConnectTimeout = 10 * time.Second
	ReadTimeout    = 30 * time.Second
)

// PingPeriod is how often the ship pings over a WebSocket tunnel.
// Pings only keep idle uplinks (and NAT mappings on them) alive; no read
// deadline is derived from them.
const PingPeriod = 20 * time.Second

// WebSocketPath is the HTTP path the offshore side upgrades tunnels on.
const WebSocketPath = "/tunnel"

// Transport names accepted by --transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// ErrChannelClosed is returned by ReadFrame when the peer closes the
// connection before a length prefix has been fully delivered.
var ErrChannelClosed = errors.New("channel closed by peer")

// ChannelIOError is any other transport failure on a channel. The channel
// is unusable afterwards.
type ChannelIOError struct {
	Op  string
	Err error
}

func (e *ChannelIOError) Error() string {
	return "channel " + e.Op + ": " + e.Err.Error()
}

func (e *ChannelIOError) Unwrap() error { return e.Err }

// Channel carries whole frames in both directions over one connection.
type Channel interface {
	// WriteFrame sends p as one frame and flushes it.
	WriteFrame(p []byte) error
	// ReadFrame blocks until one complete frame has arrived.
	ReadFrame() ([]byte, error)
	Close() error
}
