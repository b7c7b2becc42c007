package shipproxy

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
)

// ConnectEstablished acknowledges a CONNECT request. No tunnel is set up
// behind it.
var ConnectEstablished = []byte("HTTP/1.1 200 Connection Established\r\n\r\n")

// ErrorResponse synthesizes a complete response for code with a plain
// text body naming the status.
func ErrorResponse(code int) []byte {
	status := fmt.Sprintf("%d %s", code, http.StatusText(code))
	return fmt.Appendf(nil, "HTTP/1.1 %s\r\n"+
		"Content-Type: text/plain\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n\r\n%s", status, len(status), status)
}

// StatusCode returns the status code from resp's status line, or 0 if the
// line cannot be parsed.
func StatusCode(resp []byte) int {
	line, _, _ := bytes.Cut(resp, []byte("\r\n"))
	fields := bytes.Fields(line)
	if len(fields) < 2 || !bytes.HasPrefix(fields[0], []byte("HTTP/")) {
		return 0
	}
	code, err := strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0
	}
	return code
}

// RequestLine returns the first line of a raw request, for logging.
func RequestLine(req []byte) string {
	line, _, _ := bytes.Cut(req, []byte("\r\n"))
	return string(line)
}
