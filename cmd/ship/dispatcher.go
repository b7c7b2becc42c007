package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/sizestr"

	"github.com/croaky/shipproxy"
)

// State is the connection state of the tunnel.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Dialer opens a new tunnel channel to the offshore server.
type Dialer func(ctx context.Context) (shipproxy.Channel, error)

// ErrDispatcherClosed is returned by Start after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

type job struct {
	req  []byte
	resp chan []byte
}

// Stats counts what the dispatcher has forwarded.
type Stats struct {
	Forwarded int64
	Failed    int64
	BytesOut  int64
	BytesIn   int64
}

func (s Stats) String() string {
	return fmt.Sprintf("%d forwarded, %d failed, %s sent, %s received",
		s.Forwarded, s.Failed, sizestr.ToString(s.BytesOut), sizestr.ToString(s.BytesIn))
}

// Dispatcher forwards requests over the single tunnel one at a time.
//
// One worker goroutine drains jobs and is the only code that touches the
// tunnel channel and its state. Senders blocked on jobs are released in
// arrival order, so local clients are served first come, first served and
// no two exchanges ever overlap on the tunnel.
type Dispatcher struct {
	dial   Dialer
	logger *log.Logger
	debug  bool

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	// owned by the worker
	ch    shipproxy.Channel
	state State

	statsMu sync.Mutex
	stats   Stats
}

// NewDispatcher returns a dispatcher that opens tunnels with dial.
func NewDispatcher(dial Dialer, logger *log.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		dial:   dial,
		logger: logger,
		jobs:   make(chan job),
		ctx:    ctx,
		cancel: cancel,
		exited: make(chan struct{}),
	}
}

// Start opens the initial tunnel and starts the worker. A failure here is
// a startup failure; the worker is not started.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.ctx.Err() != nil {
		return ErrDispatcherClosed
	}
	ch, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to offshore: %w", err)
	}
	d.ch, d.state = ch, Connected
	d.logger.Printf("tunnel connected")
	go d.run()
	return nil
}

// Forward sends req over the tunnel and returns the raw response. It never
// fails: tunnel problems are answered with a synthesized 502 Bad Gateway.
// Cancelling ctx abandons the wait but not an exchange already underway.
func (d *Dispatcher) Forward(ctx context.Context, req []byte) []byte {
	j := job{req: req, resp: make(chan []byte, 1)}
	select {
	case d.jobs <- j:
	case <-ctx.Done():
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	case <-d.exited:
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	}
	select {
	case resp := <-j.resp:
		return resp
	case <-ctx.Done():
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	}
}

// Close stops the worker and closes the tunnel, unblocking an exchange in
// progress. Queued requests are not drained.
func (d *Dispatcher) Close() {
	d.cancel()
}

// Wait blocks until the worker has exited after Close.
func (d *Dispatcher) Wait() {
	<-d.exited
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Dispatcher) run() {
	defer close(d.exited)
	defer func() {
		if d.ch != nil {
			_ = d.ch.Close()
			d.ch, d.state = nil, Disconnected
		}
	}()
	for {
		select {
		case j := <-d.jobs:
			j.resp <- d.exchange(j.req)
		case <-d.ctx.Done():
			return
		}
	}
}

// exchange runs one request/response round trip on the tunnel.
func (d *Dispatcher) exchange(req []byte) []byte {
	if d.state == Disconnected {
		if err := d.reconnect(); err != nil {
			d.logger.Printf("reconnect failed: %v", err)
			d.count(false, 0, 0)
			return shipproxy.ErrorResponse(http.StatusBadGateway)
		}
	}

	// Close unblocks a pending ReadFrame by closing the channel under it.
	ch := d.ch
	stop := context.AfterFunc(d.ctx, func() { _ = ch.Close() })
	defer stop()

	start := time.Now()
	if err := ch.WriteFrame(req); err != nil {
		d.disconnect(err)
		d.count(false, 0, 0)
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	}
	resp, err := ch.ReadFrame()
	if err != nil {
		d.disconnect(err)
		d.count(false, int64(len(req)), 0)
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	}
	if d.debug {
		d.logger.Printf("tunnel exchange: %s out, %s in, %.2fms",
			sizestr.ToString(int64(len(req))), sizestr.ToString(int64(len(resp))), ms(time.Since(start)))
	}
	d.count(true, int64(len(req)), int64(len(resp)))
	return resp
}

func (d *Dispatcher) reconnect() error {
	if d.ctx.Err() != nil {
		return ErrDispatcherClosed
	}
	d.logger.Printf("tunnel %s, reconnecting", d.state)
	ch, err := d.dial(d.ctx)
	if err != nil {
		return err
	}
	d.ch, d.state = ch, Connected
	d.logger.Printf("tunnel %s", d.state)
	return nil
}

func (d *Dispatcher) disconnect(err error) {
	if errors.Is(err, shipproxy.ErrChannelClosed) {
		d.logger.Printf("offshore closed the tunnel")
	} else {
		d.logger.Printf("tunnel error: %v", err)
	}
	_ = d.ch.Close()
	d.ch, d.state = nil, Disconnected
}

func (d *Dispatcher) count(ok bool, out, in int64) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	if ok {
		d.stats.Forwarded++
	} else {
		d.stats.Failed++
	}
	d.stats.BytesOut += out
	d.stats.BytesIn += in
}
