// Package port abstracts the duplex byte channel the bus transmits and
// receives STS3215 frames over. A Port implementation knows nothing about
// framing or register semantics; it is a single-owner byte pipe.
package port

import (
	"time"

	"github.com/pkg/errors"
)

// Port is a single-owner duplex byte channel, per SPEC_FULL.md §4.1.
type Port interface {
	// Write transmits all of b before returning.
	Write(b []byte) error
	// Read returns any bytes available before deadline. An empty read after
	// deadline is ErrTimeout, not success.
	Read(deadline time.Duration) ([]byte, error)
	// FlushRX is a best-effort, non-blocking drain of pending inbound bytes.
	FlushRX()
	// Close releases the underlying device.
	Close() error
}

// ErrTimeout is returned by Read when no bytes arrive before the deadline.
var ErrTimeout = errors.New("port: read timeout")

// ErrClosed is returned by Write/Read once the port has been closed.
var ErrClosed = errors.New("port: closed")
