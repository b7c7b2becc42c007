// Command offshore is the offshore proxy.
// Deploy this where the internet is reachable; it accepts ship tunnels and
// performs the relayed HTTP requests against their origin servers.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/croaky/shipproxy"
)

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

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

	relay := NewRelay(args.ConnectTimeout, args.ReadTimeout, log.Default())
	relay.debug = args.Debug
	s := newServer(relay, log.Default())
	s.debug = args.Debug

	ln, err := net.Listen("tcp", args.ListenAddress())
	if err != nil {
		log.Fatalf("listen %s: %v", args.ListenAddress(), err)
	}
	log.Printf("offshore listening on %s (%s)", ln.Addr(), args.Transport)

	if args.Transport == shipproxy.TransportWebSocket {
		err = s.serveHTTP(ctx, ln)
	} else {
		err = s.serveTCP(ctx, ln)
	}
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	log.Printf("shutting down, ship connections %s", &s.stats)
}
