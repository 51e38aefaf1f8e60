package channel

import (
	"errors"
	"fmt"
)

// ErrNotConnected is the cause of a PublishError when no live connection exists.
var ErrNotConnected = errors.New("channel: not connected")

// ConnectionError reports that the endpoint could not be reached.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("channel: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PublishError reports that an event could not be written.
type PublishError struct {
	Event string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("channel: publish %s: %v", e.Event, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
