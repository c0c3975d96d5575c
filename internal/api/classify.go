package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tidwall/gjson"
)

// Error classification. Every transport, HTTP, or business failure is mapped
// to a UniformError here; nothing past the gateway boundary sees raw errors.
// Classification never fails; it always returns a value to act on.

// ClassifyTransport maps a failed round trip (no response received).
func ClassifyTransport(url string, err error) *UniformError {
	if isTimeout(err) {
		return &UniformError{
			Title:   "request timeout",
			Message: url + " === the network may be slow or the server busy, try again shortly",
		}
	}
	return &UniformError{
		Title:   "request failed",
		Message: url + " === the server ran into a problem, try again later",
	}
}

// ClassifyHTTP maps a received response with a non-2xx status. A 500 carries
// a JSON body whose "message" field is the detail; anything else uses the raw
// body text. The status code prefixes the title either way.
func ClassifyHTTP(url string, status int, body []byte) *UniformError {
	detail := string(body)
	if status == 500 {
		if msg := gjson.GetBytes(body, "message"); msg.Exists() {
			detail = msg.String()
		}
	}
	return &UniformError{
		Title:   fmt.Sprintf("request error: %d", status),
		Message: url + " === " + detail,
	}
}

// ClassifyBusiness maps a 2xx response whose envelope code is neither OK nor
// session-expired. The envelope msg is the detail, falling back to the raw
// body when absent.
func ClassifyBusiness(msg string, body []byte) *UniformError {
	if msg == "" {
		msg = string(body)
	}
	return &UniformError{Title: "Error!", Message: msg}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout")
}
