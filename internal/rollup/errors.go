package rollup

import (
	"errors"
	"fmt"
)

// ErrTransport marks failures talking to the rollup server. They are not retried.
var ErrTransport = errors.New("rollup_transport")

type TransportError struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("rollup %s: %v", e.Operation, e.Err)
	case e.Body != "":
		return fmt.Sprintf("rollup %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("rollup %s: unexpected status %d", e.Operation, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
