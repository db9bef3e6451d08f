// Package fakeport is an in-memory, byte-recording Port double used by the
// bus and root armctl tests so they never need real hardware (the
// calibration and teleop tests use their own narrower in-package fakes). Grounded on the dependency-injected fake Port in the pack's
// sitdownSeungpyo/dxl_go driver tests.
package fakeport

import (
	"sync"
	"time"

	"github.com/so100-go/armctl/port"
)

// Responder computes the reply bytes (if any) for a written request. It is
// invoked synchronously from Write, in the order requests are written.
type Responder func(written []byte) []byte

// Port is a fake port.Port. Every call to Write is recorded in Sent; the
// configured Responder (or a queued canned response) determines what Read
// returns next.
type Port struct {
	mu sync.Mutex

	Sent      [][]byte
	Responder Responder
	queued    [][]byte
	closed    bool

	// DropNext, if > 0, causes that many upcoming reads to return
	// port.ErrTimeout regardless of Responder, simulating a silent servo.
	DropNext int
}

// New returns a fake port with no responder configured (reads time out).
func New() *Port {
	return &Port{}
}

// QueueReply pushes a canned reply to be returned on the next Read call,
// ahead of whatever the Responder would produce.
func (p *Port) QueueReply(reply []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, reply)
}

func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return port.ErrClosed
	}
	cp := append([]byte(nil), b...)
	p.Sent = append(p.Sent, cp)
	if p.Responder != nil {
		if reply := p.Responder(cp); reply != nil {
			p.queued = append(p.queued, reply)
		}
	}
	return nil
}

func (p *Port) Read(deadline time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, port.ErrClosed
	}
	if p.DropNext > 0 {
		p.DropNext--
		return nil, port.ErrTimeout
	}
	if len(p.queued) == 0 {
		return nil, port.ErrTimeout
	}
	reply := p.queued[0]
	p.queued = p.queued[1:]
	return reply, nil
}

func (p *Port) FlushRX() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// LastSent returns the most recently written packet, or nil if none.
func (p *Port) LastSent() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sent) == 0 {
		return nil
	}
	return p.Sent[len(p.Sent)-1]
}
