package shipproxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// wsPair starts an upgrade endpoint and returns the dialed client channel
// plus the server channel accepted behind it.
func wsPair(t *testing.T) (*WebSocketChannel, *WebSocketChannel) {
	t.Helper()
	accepted := make(chan *WebSocketChannel, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != WebSocketPath {
			http.NotFound(w, r)
			return
		}
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- NewWebSocketChannel(conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialWebSocket(ctx, strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	var server *WebSocketChannel
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestWebSocketChannelRoundTrip(t *testing.T) {
	client, server := wsPair(t)

	for _, payload := range [][]byte{{}, []byte("GET / HTTP/1.1\r\n\r\n"), bytes.Repeat([]byte{0xfe}, 70000)} {
		if err := client.WriteFrame(payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		got, err := server.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("got %d bytes, want %d", len(got), len(payload))
		}
	}
}

func TestWebSocketChannelPeerClose(t *testing.T) {
	client, server := wsPair(t)
	client.Close()

	if _, err := server.ReadFrame(); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("err = %v, want ErrChannelClosed", err)
	}
}

func TestWebSocketChannelKeepalive(t *testing.T) {
	client, server := wsPair(t)
	client.StartKeepalive(10*time.Millisecond, log.New(io.Discard, "", 0))

	// Pings are answered while the server reads; frames still arrive intact.
	time.Sleep(50 * time.Millisecond)
	if err := client.WriteFrame([]byte("after pings")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(got) != "after pings" {
		t.Fatalf("got %q", got)
	}
}
