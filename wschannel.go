package shipproxy

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Upgrader accepts tunnel connections on the offshore HTTP surface.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketChannel carries one frame per binary WebSocket message, for
// uplinks that only let HTTP through. The frame length is implied by the
// WebSocket framing.
type WebSocketChannel struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes with the pinger
	done chan struct{}
	once sync.Once
	rerr error
	werr error
}

// NewWebSocketChannel wraps conn. The channel takes ownership of conn.
func NewWebSocketChannel(conn *websocket.Conn) *WebSocketChannel {
	return &WebSocketChannel{conn: conn, done: make(chan struct{})}
}

// DialWebSocket opens a WebSocket tunnel to the offshore server at addr.
func DialWebSocket(ctx context.Context, addr string) (*WebSocketChannel, error) {
	d := websocket.Dialer{HandshakeTimeout: ConnectTimeout}
	u := "ws://" + addr + WebSocketPath
	conn, _, err := d.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return NewWebSocketChannel(conn), nil
}

// StartKeepalive pings the peer every period until the channel is closed.
func (c *WebSocketChannel) StartKeepalive(period time.Duration, logger *log.Logger) {
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.mu.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					logger.Printf("tunnel ping error: %v", err)
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

// WriteFrame sends p as one binary message.
func (c *WebSocketChannel) WriteFrame(p []byte) error {
	if c.werr != nil {
		return c.werr
	}
	c.mu.Lock()
	err := c.conn.WriteMessage(websocket.BinaryMessage, p)
	c.mu.Unlock()
	if err != nil {
		c.werr = &ChannelIOError{Op: "write", Err: err}
		return c.werr
	}
	return nil
}

// ReadFrame returns the next binary or text message.
func (c *WebSocketChannel) ReadFrame() ([]byte, error) {
	if c.rerr != nil {
		return nil, c.rerr
	}
	_, p, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			c.rerr = ErrChannelClosed
		} else {
			c.rerr = &ChannelIOError{Op: "read", Err: err}
		}
		return nil, c.rerr
	}
	return p, nil
}

// Close sends a normal closure and closes the socket.
func (c *WebSocketChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	// WriteControl may run concurrently with a blocked WriteMessage.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}

// RemoteAddr reports the peer address.
func (c *WebSocketChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
