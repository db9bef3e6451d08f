// Package bus serializes synchronous register requests over a port.Port,
// applying the STS3215 family's timing discipline: a settling delay before
// the first read attempt, a per-attempt read budget, retry with backoff, and
// inter-motor pacing for bulk operations. Grounded on the teacher's
// config.go fallback-on-exhaustion pattern for bulk reads and on the pack's
// dxl-driver.go SyncRead/SyncReadData partial-failure shape.
package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/so100-go/armctl/port"
	"github.com/so100-go/armctl/protocol"
)

// Timing constants fixed by the servo silicon. Per spec.md §4.3 / §5.
const (
	WriteToReadDelay = 10 * time.Millisecond
	ReadBudget       = 150 * time.Millisecond
	RetryDelay       = 20 * time.Millisecond
	InterMotorDelay  = 10 * time.Millisecond
	MaxAttempts      = 3
)

// MidTravel is the fallback position used when a bulk read exhausts retries.
const MidTravel uint16 = 2047

// Kind enumerates the BusError taxonomy from spec.md §7.
type Kind int

const (
	KindIO Kind = iota
	KindNoResponse
	KindServo
)

// Error is the Bus's error taxonomy; every surfaced error carries which
// motor, which register, and which underlying cause, per spec.md §7.
type Error struct {
	Kind  Kind
	ID    byte
	Addr  byte
	Cause error
	// ErrByte is set when Kind == KindServo: the raw non-zero ERR byte.
	ErrByte byte
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIO:
		return "bus: io error motor " + itoa(e.ID) + ": " + e.Cause.Error()
	case KindServo:
		return "bus: servo error motor " + itoa(e.ID) + " err=" + itoa(e.ErrByte)
	default:
		return "bus: no response from motor " + itoa(e.ID) + " addr " + itoa(e.Addr)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func itoa(b byte) string {
	const digits = "0123456789"
	if b == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for b > 0 {
		i--
		buf[i] = digits[b%10]
		b /= 10
	}
	return string(buf[i:])
}

// Bus wraps a Port and Codec and serializes all access: exactly one
// operation may be in flight at any moment (spec.md §4.3 Exclusivity).
type Bus struct {
	mu   sync.Mutex
	port port.Port
	log  *zap.SugaredLogger

	lastID   byte
	haveLast bool
}

// New constructs a Bus over p. log may be nil, in which case a no-op logger
// is used.
func New(p port.Port, log *zap.SugaredLogger) *Bus {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bus{port: p, log: log}
}

// pace applies InterMotorDelay when the current request targets a different
// motor than the previous one, per spec.md §4.3 / §5.
func (b *Bus) pace(id byte) {
	if b.haveLast && b.lastID != id {
		time.Sleep(InterMotorDelay)
	}
	b.lastID = id
	b.haveLast = true
}

// request transmits pkt and returns the parsed status reply, applying the
// full retry/timing policy in spec.md §4.3. addr is carried only for error
// reporting.
func (b *Bus) request(id byte, addr byte, pkt []byte) (*protocol.Packet, error) {
	var lastErr error
	var lastErrByte byte
	sawServoErr := false
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		b.port.FlushRX()
		if err := b.port.Write(pkt); err != nil {
			lastErr = err
			b.log.Debugw("bus write failed", "motor", id, "attempt", attempt, "err", err)
			time.Sleep(RetryDelay)
			continue
		}
		time.Sleep(WriteToReadDelay)
		reply, err := b.port.Read(ReadBudget)
		if err != nil {
			lastErr = err
			b.log.Debugw("bus read failed", "motor", id, "attempt", attempt, "err", err)
			time.Sleep(RetryDelay)
			continue
		}
		status, err := protocol.ParseStatus(reply, id)
		if err != nil {
			lastErr = err
			b.log.Debugw("bus malformed reply", "motor", id, "attempt", attempt, "err", err)
			time.Sleep(RetryDelay)
			continue
		}
		if status.Err != 0 {
			// Treated as an attempt-failure, same as timeout/malformed, per
			// spec.md §4.3 step 5/6: retried up to MaxAttempts, surfaced
			// only on exhaustion (spec.md §7 ServoError).
			sawServoErr = true
			lastErrByte = status.Err
			b.log.Debugw("bus servo error", "motor", id, "attempt", attempt, "err_byte", status.Err)
			time.Sleep(RetryDelay)
			continue
		}
		return status, nil
	}
	if sawServoErr {
		return nil, &Error{Kind: KindServo, ID: id, Addr: addr, ErrByte: lastErrByte, Cause: lastErr}
	}
	return nil, &Error{Kind: KindNoResponse, ID: id, Addr: addr, Cause: lastErr}
}

// ReadU16 reads a 2-byte register. Exhaustion is a hard error, per spec.md
// §4.3 Fallback semantics: KindServo if any attempt got a non-zero ERR byte,
// otherwise KindNoResponse.
func (b *Bus) ReadU16(id byte, addr byte) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pace(id)
	pkt := protocol.BuildRead(id, addr, 2)
	status, err := b.request(id, addr, pkt)
	if err != nil {
		return 0, err
	}
	if len(status.Params) < 2 {
		return 0, &Error{Kind: KindIO, ID: id, Addr: addr, Cause: &protocol.ErrMalformed{Reason: "short data"}}
	}
	return protocol.DecodeU16LE(status.Params), nil
}

// WriteU16 writes a 2-byte register.
func (b *Bus) WriteU16(id byte, addr byte, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pace(id)
	pkt := protocol.BuildWriteU16(id, addr, value)
	_, err := b.request(id, addr, pkt)
	return err
}

// WriteU8 writes a 1-byte register.
func (b *Bus) WriteU8(id byte, addr byte, value byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pace(id)
	pkt := protocol.BuildWriteU8(id, addr, value)
	_, err := b.request(id, addr, pkt)
	return err
}

// ReadPositions reads Present_Position for each id in order, applying
// inter-motor pacing. A motor that exhausts its retries resolves to
// MidTravel and the bulk call still succeeds, per spec.md §4.3 Fallback
// semantics.
func (b *Bus) ReadPositions(ids []byte) []uint16 {
	out := make([]uint16, len(ids))
	for i, id := range ids {
		v, err := b.ReadU16(id, protocol.AddrPresentPosition)
		if err != nil {
			b.log.Warnw("read_positions fallback to mid-travel", "motor", id, "err", err)
			out[i] = MidTravel
			continue
		}
		out[i] = v
	}
	return out
}

// ReleaseTorque writes Torque_Enable=0 for every id.
func (b *Bus) ReleaseTorque(ids []byte) error {
	for _, id := range ids {
		if err := b.WriteU8(id, protocol.AddrTorqueEnable, 0); err != nil {
			return err
		}
	}
	return nil
}

// EnableTorque writes Torque_Enable=1 for every id.
func (b *Bus) EnableTorque(ids []byte) error {
	for _, id := range ids {
		if err := b.WriteU8(id, protocol.AddrTorqueEnable, 1); err != nil {
			return err
		}
	}
	return nil
}
