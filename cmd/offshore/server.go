package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/jpillora/requestlog"

	"github.com/croaky/shipproxy"
)

const maxAcceptFailures = 10

// connStats keeps currently open and total ship connection counts.
type connStats struct {
	count atomic.Int32
	open  atomic.Int32
}

func (c *connStats) String() string {
	return fmt.Sprintf("[%d/%d]", c.open.Load(), c.count.Load())
}

// server runs one independent session per ship connection. The session
// set exists only so shutdown can close every tunnel.
type server struct {
	relay  *Relay
	logger *log.Logger
	debug  bool
	stats  connStats

	mu       sync.Mutex
	sessions map[shipproxy.Channel]struct{}
}

func newServer(relay *Relay, logger *log.Logger) *server {
	return &server{
		relay:    relay,
		logger:   logger,
		sessions: make(map[shipproxy.Channel]struct{}),
	}
}

// serveTCP accepts framed TCP tunnels on ln until ctx is done.
func (s *server) serveTCP(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeSessions()
	})
	defer stop()
	defer ln.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if int(b.Attempt()) >= maxAcceptFailures {
				return fmt.Errorf("accept: %w", err)
			}
			wait := b.Duration()
			s.logger.Printf("accept error: %v; retrying in %s", err, wait)
			time.Sleep(wait)
			continue
		}
		b.Reset()
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, shipproxy.NewStreamChannel(conn), conn.RemoteAddr().String())
		}()
	}
}

// serveHTTP serves the WebSocket tunnel endpoint and /health on ln until
// ctx is done.
func (s *server) serveHTTP(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.handler(ctx)}
	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
		s.closeSessions()
	})
	defer stop()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *server) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(shipproxy.WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := shipproxy.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Printf("websocket upgrade error: %v", err)
			return
		}
		s.handle(ctx, shipproxy.NewWebSocketChannel(conn), r.RemoteAddr)
	})

	var h http.Handler = mux
	if s.debug {
		h = requestlog.Wrap(h)
	}
	return h
}

// handle runs one ship session to completion and closes its channel.
func (s *server) handle(ctx context.Context, ch shipproxy.Channel, ship string) {
	logf := sessionLogger(s.logger, ship)
	if !s.track(ch) {
		_ = ch.Close()
		return
	}
	defer s.untrack(ch)

	s.stats.count.Add(1)
	s.stats.open.Add(1)
	defer s.stats.open.Add(-1)

	logf("tunnel connected %s", &s.stats)
	if err := serveSession(ctx, ch, s.relay, logf); err != nil {
		logf("session ended: %v", err)
	}
	_ = ch.Close()
}

// track registers ch, refusing it once shutdown has begun.
func (s *server) track(ch shipproxy.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return false
	}
	s.sessions[ch] = struct{}{}
	return true
}

func (s *server) untrack(ch shipproxy.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, ch)
}

// closeSessions closes every open tunnel, unblocking their reads.
// In-flight requests are abandoned.
func (s *server) closeSessions() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()

	for ch := range sessions {
		_ = ch.Close()
	}
}
