package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jpillora/sizestr"
	"golang.org/x/net/http/httpguts"

	"github.com/croaky/shipproxy"
)

// ProtocolError is a relayed request that cannot be turned into an
// outbound request. It is answered with 400 Bad Request.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "bad request: " + e.Reason }

// UpstreamError is a failure reaching or reading from the origin server.
// It is answered with 502 Bad Gateway.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string { return "upstream " + e.URL + ": " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// Headers the outbound transport manages itself.
var managedHeaders = []string{"Host", "Connection", "Content-Length"}

// Relay executes relayed requests against their origin servers.
type Relay struct {
	client *http.Client
	logger *log.Logger
	debug  bool
}

// NewRelay returns a relay whose origin connections fail after
// connectTimeout to connect or readTimeout without receiving data.
func NewRelay(connectTimeout, readTimeout time.Duration, logger *log.Logger) *Relay {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &readTimeoutConn{Conn: c, timeout: readTimeout}, nil
		},
		TLSHandshakeTimeout: connectTimeout,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Relay{
		client: &http.Client{
			Transport: tr,
			// 3xx responses go back to the client untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Process turns one raw HTTP request into one raw HTTP response. Every
// failure is answered with a synthesized response.
func (r *Relay) Process(ctx context.Context, req []byte) []byte {
	resp, err := r.do(ctx, req)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			r.logger.Printf("%d %s: %v", http.StatusBadRequest, shipproxy.RequestLine(req), err)
			return shipproxy.ErrorResponse(http.StatusBadRequest)
		}
		r.logger.Printf("%d %s: %v", http.StatusBadGateway, shipproxy.RequestLine(req), err)
		return shipproxy.ErrorResponse(http.StatusBadGateway)
	}
	return resp
}

func (r *Relay) do(ctx context.Context, raw []byte) ([]byte, error) {
	head, body, _ := strings.Cut(string(raw), "\r\n\r\n")
	requestLine, headerBlock, _ := strings.Cut(head, "\r\n")

	parts := strings.Fields(requestLine)
	if len(parts) < 3 {
		return nil, &ProtocolError{Reason: fmt.Sprintf("request line %q", requestLine)}
	}
	method, target := parts[0], parts[1]

	if strings.EqualFold(method, http.MethodConnect) {
		r.logger.Printf("CONNECT %s acknowledged without a tunnel", target)
		return shipproxy.ConnectEstablished, nil
	}

	u, err := targetURL(target)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error()}
	}

	var reqBody io.Reader
	if (strings.EqualFold(method, http.MethodPost) || strings.EqualFold(method, http.MethodPut)) && body != "" {
		reqBody = strings.NewReader(body)
	}
	out, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, &ProtocolError{Reason: err.Error()}
	}
	r.copyHeaders(out.Header, headerBlock)
	if _, ok := out.Header["User-Agent"]; !ok {
		// Send no User-Agent rather than Go's default.
		out.Header["User-Agent"] = []string{""}
	}

	start := time.Now()
	res, err := r.client.Do(out)
	if err != nil {
		return nil, &UpstreamError{URL: u.String(), Err: err}
	}
	defer res.Body.Close()

	// Inherently non-streaming: the whole body is buffered before framing.
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &UpstreamError{URL: u.String(), Err: err}
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %s\r\n", res.Status)
	writeHeaders(&b, res.Header)
	if len(res.TransferEncoding) > 0 && res.Header.Get("Content-Length") == "" && !strings.EqualFold(method, http.MethodHead) {
		// The transfer coding was removed while reading; describe the body we carry.
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resBody))
	}
	b.WriteString("\r\n")
	b.Write(resBody)

	r.logger.Printf("%d %s %s %s %.2fms", res.StatusCode, method, u, sizestr.ToString(int64(len(resBody))), ms(time.Since(start)))
	return b.Bytes(), nil
}

// copyHeaders adds every "Name: value" line of block to h, skipping the
// headers the transport manages and anything that is not a valid field.
func (r *Relay) copyHeaders(h http.Header, block string) {
	for _, line := range strings.Split(block, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if slices.ContainsFunc(managedHeaders, func(m string) bool { return strings.EqualFold(m, name) }) {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			if r.debug {
				r.logger.Printf("skipping invalid header %q", name)
			}
			continue
		}
		h.Add(name, value)
	}
}

// writeHeaders writes h in sorted name order, keeping each name's values
// in the order received. Names come out in canonical form since net/http
// does not keep the origin's spelling or cross-name order.
func writeHeaders(w *bytes.Buffer, h http.Header) {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, v := range h[name] {
			fmt.Fprintf(w, "%s: %s\r\n", name, v)
		}
	}
}

// targetURL makes target absolute, defaulting the scheme to http.
func targetURL(target string) (*url.URL, error) {
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", target, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", target)
	}
	return u, nil
}

// readTimeoutConn bounds every read on an origin connection.
type readTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *readTimeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// Write restarts the read window. An idle pooled connection already has a
// Read pending, so its deadline would otherwise date from when it went idle.
func (c *readTimeoutConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
