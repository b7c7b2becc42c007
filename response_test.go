package shipproxy

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		code     int
		wantLine string
	}{
		{http.StatusBadGateway, "HTTP/1.1 502 Bad Gateway"},
		{http.StatusBadRequest, "HTTP/1.1 400 Bad Request"},
	}
	for _, tt := range tests {
		t.Run(tt.wantLine, func(t *testing.T) {
			resp := ErrorResponse(tt.code)
			line, _, _ := strings.Cut(string(resp), "\r\n")
			if line != tt.wantLine {
				t.Fatalf("status line = %q, want %q", line, tt.wantLine)
			}

			// The synthesized response must be readable by a real HTTP client.
			r, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(resp)), nil)
			if err != nil {
				t.Fatalf("ReadResponse: %v", err)
			}
			defer r.Body.Close()
			body, _ := io.ReadAll(r.Body)
			if r.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", r.StatusCode, tt.code)
			}
			if string(body) != strings.TrimPrefix(tt.wantLine, "HTTP/1.1 ") {
				t.Errorf("body = %q", body)
			}
			if r.Header.Get("Content-Type") != "text/plain" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		resp string
		want int
	}{
		{"HTTP/1.1 200 OK\r\n\r\n", 200},
		{string(ConnectEstablished), 200},
		{string(ErrorResponse(502)), 502},
		{"HTTP/1.1 404\r\n\r\n", 404},
		{"garbage", 0},
		{"", 0},
		{"HTTP/1.1 abc OK\r\n", 0},
	}
	for _, tt := range tests {
		if got := StatusCode([]byte(tt.resp)); got != tt.want {
			t.Errorf("StatusCode(%q) = %d, want %d", tt.resp, got, tt.want)
		}
	}
}

func TestRequestLine(t *testing.T) {
	if got := RequestLine([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); got != "GET / HTTP/1.1" {
		t.Errorf("RequestLine = %q", got)
	}
}
