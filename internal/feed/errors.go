package feed

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch reports a fetch whose response decoded fine but held no
// usable articles once filtered. It lands the feed in StateFailed like any
// other fetch error; an empty feed has nothing to render either way.
var ErrEmptyBatch = errors.New("no usable articles in response")

// TransportError wraps a failure to reach the relay at all: DNS, refused
// connection, timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relay unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError reports a reachable relay answering with a non-success
// status or envelope.
type UpstreamError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay %s returned %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("relay %s returned %d", e.Endpoint, e.Code)
}
