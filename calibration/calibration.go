// Package calibration implements the CalibrationEngine: release torque,
// capture homing offsets, stream live travel ranges, write limits, and emit
// a persisted CalibrationRecord. Grounded on the teacher's calibration.go
// so101CalibrationSensor state machine (CalibrationState,
// recordPositions, setHomingPosition), collapsed to the 5-state machine
// spec.md §4.5 names.
package calibration

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/so100-go/armctl/protocol"
	"github.com/so100-go/armctl/robot"
)

// State is one of the calibration engine's states, per spec.md §4.5.
type State int

const (
	Idle State = iota
	Releasing
	Homing
	Recording
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Releasing:
		return "releasing"
	case Homing:
		return "homing"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// LiveRange is one motor's live travel-capture data, per spec.md §4.5
// LiveData.
type LiveRange struct {
	Current int
	Min     int
	Max     int
	Range   int
}

// LiveData is the per-sweep snapshot delivered to Callbacks.OnLive.
type LiveData map[robot.MotorName]LiveRange

// Callbacks are the CalibrationEngine's progress/live-data hooks, per
// spec.md §4.5 and the callback/snapshot strategy in §9.
type Callbacks struct {
	OnLive     func(LiveData)
	OnProgress func(string)
}

// Error is CalError from spec.md §4.5 / §7.
type Error struct {
	Phase string
	Cause error
	// Invariant is set when Cause is nil and the failure is a non-fatal
	// InvariantViolation surfaced as a warning rather than a hard failure.
	Invariant *robot.ErrInvariantViolation
}

func (e *Error) Error() string {
	if e.Invariant != nil {
		return "calibration: " + e.Phase + ": " + e.Invariant.Error()
	}
	return "calibration: " + e.Phase + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// SweepRate is the default recording-loop cadence. spec.md §4.5 requires
// <= 50 Hz.
const SweepRate = 20 * time.Millisecond // 50 Hz

// HomingSettle is the wait after resetting homing offsets before capturing
// the reference pose, per spec.md §4.5 step 2.
const HomingSettle = 100 * time.Millisecond

// Process is a CalibrationProcess: the handle a caller uses to stop the
// in-flight run and retrieve its result.
type Process struct {
	mu       sync.Mutex
	state    State
	stopReq  bool
	done     chan struct{}
	result   robot.CalibrationRecord
	err      error
}

// Stop requests the recording loop to end. Only meaningful in Recording;
// in Releasing/Homing it is queued and applied once Recording is entered,
// per spec.md §4.5 state machine. It returns immediately (spec.md §5
// Cancellation).
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopReq = true
}

func (p *Process) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopReq
}

func (p *Process) clearStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopReq = false
}

// State returns the process's current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Result blocks until the process finishes and returns its
// CalibrationRecord, or the fatal error that ended it.
func (p *Process) Result() (robot.CalibrationRecord, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

func (p *Process) finish(rec robot.CalibrationRecord, err error, final State) {
	p.mu.Lock()
	p.result = rec
	p.err = err
	p.state = final
	p.mu.Unlock()
	close(p.done)
}

// engine is the subset of robot.Handle the calibration run needs; kept
// narrow so tests can fake only what this package touches.
type engine interface {
	ReleaseTorque(ids []byte) error
	WriteU16(id byte, addr byte, value uint16) error
	ReadPositions(ids []byte) []uint16
	WriteU8(id byte, addr byte, value byte) error
}

// Calibrate runs the full calibration sequence from spec.md §4.5 against
// handle's bus, returning a Process the caller can Stop() and await.
func Calibrate(h *robot.Handle, cb Callbacks) *Process {
	return calibrate(h.Bus, h.Profile, cb, nil)
}

func calibrate(b engine, profile *robot.Profile, cb Callbacks, log *zap.SugaredLogger) *Process {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Process{state: Idle, done: make(chan struct{})}
	go runCalibration(b, profile, cb, log, p)
	return p
}

func emit(cb Callbacks, msg string) {
	if cb.OnProgress != nil {
		cb.OnProgress(msg)
	}
}

func runCalibration(b engine, profile *robot.Profile, cb Callbacks, log *zap.SugaredLogger, p *Process) {
	ids := profile.MotorIDs[:]

	// 1. Release torque.
	p.setState(Releasing)
	if err := b.ReleaseTorque(ids); err != nil {
		p.finish(nil, &Error{Phase: "release", Cause: errors.Wrap(err, "release torque")}, Failed)
		return
	}
	emit(cb, "released")

	// 2. Reset homing offsets to 0, settle.
	p.setState(Homing)
	if p.stopRequested() {
		// stop() queued during Releasing is applied once Recording is
		// entered; here we're still pre-Recording so just remember it.
	}
	for _, id := range ids {
		if err := b.WriteU16(id, protocol.AddrHomingOffset, 0); err != nil {
			p.finish(nil, &Error{Phase: "homing", Cause: errors.Wrap(err, "reset homing offset")}, Failed)
			return
		}
	}
	time.Sleep(HomingSettle)

	// 3. Capture reference: homing_offset_i = position_i - 2047.
	positions := b.ReadPositions(ids)
	offsets := make(map[robot.MotorName]int, len(ids))
	for i, name := range profile.MotorNames {
		offset := int(positions[i]) - robot.MidTravel
		offsets[name] = offset
		encoded, err := protocol.EncodeSignMagnitude(offset)
		if err != nil {
			p.finish(nil, &Error{Phase: "homing", Cause: errors.Wrapf(err, "encode homing offset for %s", name)}, Failed)
			return
		}
		if err := b.WriteU16(ids[i], protocol.AddrHomingOffset, encoded); err != nil {
			p.finish(nil, &Error{Phase: "homing", Cause: errors.Wrapf(err, "write homing offset for %s", name)}, Failed)
			return
		}
	}
	emit(cb, "homed")

	// 4. Record travel until stop().
	p.setState(Recording)
	minVal := make(map[robot.MotorName]int, len(ids))
	maxVal := make(map[robot.MotorName]int, len(ids))
	for _, name := range profile.MotorNames {
		minVal[name] = robot.MidTravel
		maxVal[name] = robot.MidTravel
	}
	for {
		if p.stopRequested() {
			break
		}
		samples := b.ReadPositions(ids)
		live := make(LiveData, len(ids))
		for i, name := range profile.MotorNames {
			v := int(samples[i])
			if v < minVal[name] {
				minVal[name] = v
			}
			if v > maxVal[name] {
				maxVal[name] = v
			}
			live[name] = LiveRange{Current: v, Min: minVal[name], Max: maxVal[name], Range: maxVal[name] - minVal[name]}
		}
		if cb.OnLive != nil {
			cb.OnLive(live)
		}
		time.Sleep(SweepRate)
	}
	p.clearStop()

	// 5. Finalize: write limits, build record.
	p.setState(Finalizing)
	emit(cb, "finalizing")
	record := make(robot.CalibrationRecord, len(ids))
	var invariantWarn *robot.ErrInvariantViolation
	for i, name := range profile.MotorNames {
		lo := robot.Clamp(minVal[name], 0, 4095)
		hi := robot.Clamp(maxVal[name], 0, 4095)
		if err := b.WriteU16(ids[i], protocol.AddrMinPositionLimit, uint16(lo)); err != nil {
			p.finish(nil, &Error{Phase: "finalize", Cause: errors.Wrapf(err, "write min limit for %s", name)}, Failed)
			return
		}
		if err := b.WriteU16(ids[i], protocol.AddrMaxPositionLimit, uint16(hi)); err != nil {
			p.finish(nil, &Error{Phase: "finalize", Cause: errors.Wrapf(err, "write max limit for %s", name)}, Failed)
			return
		}
		record[name] = robot.MotorCalibration{
			ID:           ids[i],
			DriveMode:    0,
			HomingOffset: offsets[name],
			RangeMin:     lo,
			RangeMax:     hi,
		}
		if lo >= hi && invariantWarn == nil {
			invariantWarn = &robot.ErrInvariantViolation{Motor: name, Reason: "joint was never moved during recording"}
		}
	}
	if invariantWarn != nil {
		log.Warnw("calibration invariant violation", "motor", invariantWarn.Motor)
		emit(cb, "warning: "+invariantWarn.Error())
	}
	emit(cb, "done")
	p.finish(record, nil, Done)
}
