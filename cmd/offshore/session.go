package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/croaky/shipproxy"
)

// serveSession relays frames on ch until the ship disconnects or the
// channel fails. A clean ship disconnect returns nil.
func serveSession(ctx context.Context, ch shipproxy.Channel, relay *Relay, logf func(string, ...any)) error {
	for {
		req, err := ch.ReadFrame()
		if errors.Is(err, shipproxy.ErrChannelClosed) {
			logf("ship disconnected")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_ = ch.WriteFrame(shipproxy.ErrorResponse(http.StatusBadGateway))
			return err
		}
		logf("received %s", shipproxy.RequestLine(req))

		resp, err := process(ctx, relay, req)
		if err != nil {
			_ = ch.WriteFrame(shipproxy.ErrorResponse(http.StatusBadGateway))
			return err
		}
		if err := ch.WriteFrame(resp); err != nil {
			return err
		}
	}
}

// process runs the relay, turning a panic into an error that ends the
// session.
func process(ctx context.Context, relay *Relay, req []byte) (resp []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("relay panic: %v", p)
		}
	}()
	return relay.Process(ctx, req), nil
}

// sessionLogger prefixes lines with the ship's address.
func sessionLogger(logger *log.Logger, ship string) func(string, ...any) {
	return func(format string, args ...any) {
		if ship != "" {
			logger.Printf("[ship %s] "+format, append([]any{ship}, args...)...)
		} else {
			logger.Printf(format, args...)
		}
	}
}
