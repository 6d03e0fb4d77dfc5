package stream

import "errors"

// ErrClosed is returned when a stream ends before producing a value.
var ErrClosed = errors.New("stream closed")
