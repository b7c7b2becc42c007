package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const maxHeaderBytes = 64 << 10

var (
	// ErrEmptyRequest means the client sent no request line at all.
	ErrEmptyRequest = errors.New("empty request")
	// ErrMalformedRequest means the request cannot be forwarded as read.
	ErrMalformedRequest = errors.New("malformed request")
)

// ReadRequest reads one raw HTTP request from r: the head up to and
// including the blank line, with every line re-terminated by CRLF, followed
// by exactly Content-Length body bytes when that header is present.
// Chunked request bodies are not supported.
func ReadRequest(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	contentLength := -1
	first := true
	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read head: %w", err)
		}
		if line == "" && err == io.EOF {
			if first {
				return nil, ErrEmptyRequest
			}
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if first {
			if line == "" {
				return nil, ErrEmptyRequest
			}
			first = false
		}
		buf.WriteString(line)
		buf.WriteString("\r\n")
		if buf.Len() > maxHeaderBytes {
			return nil, fmt.Errorf("%w: head larger than %d bytes", ErrMalformedRequest, maxHeaderBytes)
		}
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			value = strings.TrimSpace(value)
			n, err := parseContentLength(value)
			if err != nil {
				return nil, fmt.Errorf("%w: Content-Length %q", ErrMalformedRequest, value)
			}
			if contentLength >= 0 && n != contentLength {
				return nil, fmt.Errorf("%w: conflicting Content-Length %d and %d", ErrMalformedRequest, contentLength, n)
			}
			contentLength = n
		}
		if err == io.EOF {
			break
		}
	}

	if contentLength > 0 {
		if _, err := io.CopyN(&buf, r, int64(contentLength)); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrMalformedRequest, unexpected(err))
		}
	}
	return buf.Bytes(), nil
}

// parseContentLength accepts only a plain run of decimal digits.
func parseContentLength(v string) (int, error) {
	if v == "" || strings.TrimLeft(v, "0123456789") != "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(v)
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
