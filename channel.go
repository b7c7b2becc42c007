package shipproxy

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
)

// StreamChannel frames messages over a byte stream as a 4-byte big-endian
// length followed by that many payload bytes.
//
// A StreamChannel is owned by one goroutine at a time. Close may be called
// from any goroutine to unblock a pending ReadFrame.
type StreamChannel struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer

	// Sticky per direction, so a side whose reads failed can still try to
	// write a final frame.
	rerr error
	werr error
}

// NewStreamChannel wraps conn. The channel takes ownership of conn.
func NewStreamChannel(conn net.Conn) *StreamChannel {
	return &StreamChannel{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// DialStream opens a TCP tunnel to addr.
func DialStream(ctx context.Context, addr string) (*StreamChannel, error) {
	d := net.Dialer{Timeout: ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStreamChannel(conn), nil
}

// WriteFrame writes the length prefix and payload, then flushes.
func (c *StreamChannel) WriteFrame(p []byte) error {
	if c.werr != nil {
		return c.werr
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return c.failWrite(err)
	}
	if _, err := c.w.Write(p); err != nil {
		return c.failWrite(err)
	}
	if err := c.w.Flush(); err != nil {
		return c.failWrite(err)
	}
	return nil
}

// ReadFrame reads one whole frame.
func (c *StreamChannel) ReadFrame() ([]byte, error) {
	if c.rerr != nil {
		return nil, c.rerr
	}
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.rerr = ErrChannelClosed
			return nil, c.rerr
		}
		c.rerr = &ChannelIOError{Op: "read", Err: err}
		return nil, c.rerr
	}
	p := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(c.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		c.rerr = &ChannelIOError{Op: "read", Err: err}
		return nil, c.rerr
	}
	return p, nil
}

// Close closes the underlying connection.
func (c *StreamChannel) Close() error {
	return c.conn.Close()
}

// RemoteAddr reports the peer address.
func (c *StreamChannel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *StreamChannel) failWrite(err error) error {
	c.werr = &ChannelIOError{Op: "write", Err: err}
	return c.werr
}
