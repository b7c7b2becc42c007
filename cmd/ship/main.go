// Command ship is the ship-side proxy.
// Run this next to local HTTP clients; it forwards their requests one at a
// time over a single persistent tunnel to the offshore proxy.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jpillora/backoff"

	"github.com/croaky/shipproxy"
)

func main() {
	log.SetFlags(0)
	shipproxy.LoadEnv(".env")

	args, err := ParseCommandLineArguments(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args); err != nil {
		log.Fatalf("error: %v", err)
	}
}

const maxAcceptFailures = 10

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// run opens the tunnel, then serves local clients until ctx is done.
func run(ctx context.Context, args *CommandLineArguments) error {
	logger := log.Default()
	d := NewDispatcher(dialer(args, logger), logger)
	d.debug = args.Debug

	log.Printf("connecting to offshore at %s (%s)", args.ServerAddress(), args.Transport)
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer func() {
		d.Close()
		d.Wait()
		log.Printf("tunnel stats: %s", d.Stats())
	}()

	ln, err := net.Listen("tcp", args.LocalAddress())
	if err != nil {
		return fmt.Errorf("listen %s: %w", args.LocalAddress(), err)
	}
	log.Printf("ship listening on %s", ln.Addr())

	p := &proxy{dispatcher: d, logger: logger}
	err = p.serve(ctx, ln)
	log.Println("shutting down")
	return err
}

// dialer opens tunnels using the configured transport.
func dialer(args *CommandLineArguments, logger *log.Logger) Dialer {
	addr := args.ServerAddress()
	if args.Transport == shipproxy.TransportWebSocket {
		return func(ctx context.Context) (shipproxy.Channel, error) {
			ch, err := shipproxy.DialWebSocket(ctx, addr)
			if err != nil {
				return nil, err
			}
			ch.StartKeepalive(shipproxy.PingPeriod, logger)
			return ch, nil
		}
	}
	return func(ctx context.Context) (shipproxy.Channel, error) {
		ch, err := shipproxy.DialStream(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return ch, nil
	}
}

type proxy struct {
	dispatcher *Dispatcher
	logger     *log.Logger
}

// serve accepts local clients until ctx is done or accepting keeps failing.
func (p *proxy) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

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
			p.logger.Printf("accept error: %v; retrying in %s", err, wait)
			time.Sleep(wait)
			continue
		}
		b.Reset()
		go p.serveClient(ctx, conn)
	}
}

// serveClient answers exactly one request on conn, then closes it.
func (p *proxy) serveClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	req, err := ReadRequest(bufio.NewReader(conn))
	switch {
	case errors.Is(err, ErrEmptyRequest):
		return
	case errors.Is(err, ErrMalformedRequest):
		p.logger.Printf("%d %s: %v", http.StatusBadRequest, conn.RemoteAddr(), err)
		_, _ = conn.Write(shipproxy.ErrorResponse(http.StatusBadRequest))
		return
	case err != nil:
		p.logger.Printf("client %s: %v", conn.RemoteAddr(), err)
		return
	}

	resp := p.dispatcher.Forward(ctx, req)
	if _, err := conn.Write(resp); err != nil {
		p.logger.Printf("client %s write error: %v", conn.RemoteAddr(), err)
	}

	method, target := "-", "-"
	if f := strings.Fields(shipproxy.RequestLine(req)); len(f) >= 2 {
		method, target = f[0], f[1]
	}
	p.logger.Printf("%d %s %s %.2fms", shipproxy.StatusCode(resp), method, target, ms(time.Since(start)))
}
