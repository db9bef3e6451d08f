// Package teleop implements the TeleopEngine: applies persisted calibration,
// then runs either a keyboard control loop or accepts direct position
// writes, surfacing live motor state. Grounded on the teacher's arm.go
// ticker-driven startLeaderSync/startFollowerSync loop, generalized into a
// single fixed-rate tick owned by the session rather than a self-
// rescheduling timer, per spec.md §9.
package teleop

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/so100-go/armctl/protocol"
	"github.com/so100-go/armctl/robot"
)

// Mode selects the controller kind, per spec.md §4.6.
type Mode int

const (
	Keyboard Mode = iota
	Direct
)

// Defaults for the keyboard controller, per spec.md §4.6.1.
const (
	DefaultUpdateRate = 60 // Hz
	MinUpdateRate     = 10
	MaxUpdateRate     = 240

	DefaultStepSize = 10
	MinStepSize     = 1
	MaxStepSize     = 200

	DefaultKeyTimeout = time.Second

	// StateCallbackRate decimates on_state delivery to avoid UI
	// saturation, per spec.md §4.6.1 step 6 / §5.
	StateCallbackRate = 10 // Hz

	// FallbackMin/Max apply when no calibration is supplied, per spec.md
	// §4.6 config.
	FallbackMin = 1024
	FallbackMax = 3072
)

// MotorConfig mirrors spec.md §4.6 MotorConfig.
type MotorConfig struct {
	ID              byte
	Name            robot.MotorName
	CurrentPosition int
	MinPosition     int
	MaxPosition     int
}

// KeyState records a key's press state and the time it was last observed
// pressed, used to auto-release keys that miss their key-up event (spec.md
// §4.6.1 step 5).
type KeyState struct {
	Pressed bool
	At      time.Time
}

// TeleopState mirrors spec.md §4.6 TeleopState.
type TeleopState struct {
	Active       bool
	Motors       [6]MotorConfig
	LastUpdateMs int64
	Keys         map[string]KeyState
}

// Error is TeleopError from spec.md §7.
type Error struct {
	Kind string // "unknown_motor" | "out_of_range"
	Name robot.MotorName
}

func (e *Error) Error() string { return "teleop: " + e.Kind + ": " + string(e.Name) }

// engine is the narrow surface Session needs from a Bus; kept as an
// interface so tests can fake it without a real port.
type engine interface {
	ReadPositions(ids []byte) []uint16
	WriteU16(id byte, addr byte, value uint16) error
	EnableTorque(ids []byte) error
	ReleaseTorque(ids []byte) error
}

// Config configures a teleoperation session, per spec.md §4.6.
type Config struct {
	Calibration robot.CalibrationRecord // optional
	Controller  Mode
	OnState     func(TeleopState)
	UpdateRate  int // Hz, keyboard only; default 60, clamped to [10,240]
	StepSize    int // keyboard only; default 10, clamped to [1,200]
	KeyTimeout  time.Duration
}

// Validate defaults zero-value fields and clamps caller-supplied UpdateRate
// and StepSize to the bounds spec.md §4.6.1 allows ("update_rate in
// [10,240] Hz", "step_size... in [1, 200]"), returning warnings for any
// value that was out of range. Mirrors the teacher's
// SoArm101Config.Validate defaulting-with-warnings convention.
func (c *Config) Validate() []string {
	var warnings []string
	if c.UpdateRate == 0 {
		c.UpdateRate = DefaultUpdateRate
	} else if c.UpdateRate < MinUpdateRate || c.UpdateRate > MaxUpdateRate {
		warnings = append(warnings, "update_rate out of range, clamped")
		c.UpdateRate = robot.Clamp(c.UpdateRate, MinUpdateRate, MaxUpdateRate)
	}
	if c.StepSize == 0 {
		c.StepSize = DefaultStepSize
	} else if c.StepSize < MinStepSize || c.StepSize > MaxStepSize {
		warnings = append(warnings, "step_size out of range, clamped")
		c.StepSize = robot.Clamp(c.StepSize, MinStepSize, MaxStepSize)
	}
	if c.KeyTimeout == 0 {
		c.KeyTimeout = DefaultKeyTimeout
	}
	return warnings
}

// Session is a TeleopSession, per spec.md §4.6.
type Session struct {
	mu      sync.Mutex
	bus     engine
	profile *robot.Profile
	cfg     Config
	log     *zap.SugaredLogger

	motors map[robot.MotorName]*MotorConfig
	active bool
	keys   map[string]KeyState

	stopCh   chan struct{}
	loopDone chan struct{}

	lastStateEmit time.Time
}

// New builds and initializes a Session over handle: motor table from the
// profile (overwritten by calibration if supplied), seeded current
// positions, torque enabled. Per spec.md §4.6 Initialization.
func New(h *robot.Handle, cfg Config) *Session {
	return newSession(h.Bus, h.Profile, cfg, nil)
}

func newSession(b engine, profile *robot.Profile, cfg Config, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	for _, w := range cfg.Validate() {
		log.Warnw("teleop config adjusted", "warning", w)
	}

	s := &Session{
		bus:     b,
		profile: profile,
		cfg:     cfg,
		log:     log,
		motors:  make(map[robot.MotorName]*MotorConfig, len(profile.MotorNames)),
		keys:    make(map[string]KeyState),
	}

	ids := profile.MotorIDs[:]
	positions := b.ReadPositions(ids)
	for i, name := range profile.MotorNames {
		minP, maxP := FallbackMin, FallbackMax
		if cfg.Calibration != nil {
			if mc, ok := cfg.Calibration[name]; ok {
				minP, maxP = mc.RangeMin, mc.RangeMax
			}
		}
		s.motors[name] = &MotorConfig{
			ID:              ids[i],
			Name:            name,
			CurrentPosition: int(positions[i]),
			MinPosition:     minP,
			MaxPosition:     maxP,
		}
	}
	_ = b.EnableTorque(ids)
	s.active = true
	return s
}

// State returns a consistent snapshot of the session, per spec.md §5 Shared
// state.
func (s *Session) State() TeleopState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out TeleopState
	out.Active = s.active
	out.LastUpdateMs = time.Now().UnixMilli()
	for i, name := range s.profile.MotorNames {
		out.Motors[i] = *s.motors[name]
	}
	if len(s.keys) > 0 {
		out.Keys = make(map[string]KeyState, len(s.keys))
		for k, v := range s.keys {
			out.Keys[k] = v
		}
	}
	return out
}

func (s *Session) emitState() {
	if s.cfg.OnState == nil {
		return
	}
	now := time.Now()
	if now.Sub(s.lastStateEmit) < time.Second/StateCallbackRate {
		return
	}
	s.lastStateEmit = now
	st := s.State()
	s.cfg.OnState(st)
}

// Start begins the keyboard control loop. A no-op for Direct sessions.
func (s *Session) Start() {
	if s.cfg.Controller != Keyboard {
		return
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return // already started
	}
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.runKeyboardLoop()
}

// Stop disables the control loop (keyboard) but leaves torque enabled so
// the arm holds its pose, per spec.md §4.6 Teardown.
func (s *Session) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-s.loopDone
}

// Disconnect additionally disables torque and releases the bus, per
// spec.md §4.6 Teardown.
func (s *Session) Disconnect() {
	s.Stop()
	ids := s.profile.MotorIDs[:]
	_ = s.bus.ReleaseTorque(ids)
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// KeyEvent records a key press/release for the keyboard controller.
func (s *Session) KeyEvent(key string, pressed bool) {
	if s.cfg.Controller != Keyboard {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !pressed {
		delete(s.keys, key)
		return
	}
	s.keys[key] = KeyState{Pressed: true, At: time.Now()}
}

func (s *Session) runKeyboardLoop() {
	defer close(s.loopDone)
	tick := time.NewTicker(time.Second / time.Duration(s.cfg.UpdateRate))
	defer tick.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-tick.C:
			s.tick()
		}
	}
}

func (s *Session) tick() {
	s.mu.Lock()
	now := time.Now()

	// Auto-release keys that missed their key-up event (spec.md §4.6.1
	// step 5).
	for k, ks := range s.keys {
		if now.Sub(ks.At) > s.cfg.KeyTimeout {
			delete(s.keys, k)
		}
	}

	if _, stopped := s.keys[string(s.profile.EmergencyStopKey)]; stopped {
		s.active = false
		s.mu.Unlock()
		_ = s.bus.ReleaseTorque(s.profile.MotorIDs[:])
		s.emitState()
		return
	}

	deltas := make(map[robot.MotorName]int)
	for key, ks := range s.keys {
		if !ks.Pressed {
			continue
		}
		binding, ok := s.profile.KeyBindings[robot.KeyCode(key)]
		if !ok {
			continue
		}
		deltas[binding.Motor] += int(binding.Dir) * s.cfg.StepSize
	}

	type write struct {
		id   byte
		name robot.MotorName
		goal int
	}
	var writes []write
	for name, delta := range deltas {
		if delta == 0 {
			continue
		}
		m := s.motors[name]
		goal := robot.Clamp(m.CurrentPosition+delta, m.MinPosition, m.MaxPosition)
		writes = append(writes, write{id: m.ID, name: name, goal: goal})
	}
	s.mu.Unlock()

	for _, w := range writes {
		if err := s.bus.WriteU16(w.id, protocol.AddrGoalPosition, uint16(w.goal)); err != nil {
			// spec.md §4.6.1 step 6: log and proceed, do not abort the session.
			s.log.Warnw("teleop write failed", "motor", w.name, "err", err)
			continue
		}
		s.mu.Lock()
		s.motors[w.name].CurrentPosition = w.goal
		s.mu.Unlock()
	}

	s.emitState()
}

// MoveMotor synchronously writes a single motor's goal position, per
// spec.md §4.6.2.
func (s *Session) MoveMotor(name robot.MotorName, pos int) error {
	s.mu.Lock()
	m, ok := s.motors[name]
	if !ok {
		s.mu.Unlock()
		return &Error{Kind: "unknown_motor", Name: name}
	}
	clamped := robot.Clamp(pos, m.MinPosition, m.MaxPosition)
	id := m.ID
	s.mu.Unlock()

	if err := s.bus.WriteU16(id, protocol.AddrGoalPosition, uint16(clamped)); err != nil {
		return err
	}
	s.mu.Lock()
	m.CurrentPosition = clamped
	s.mu.Unlock()
	if s.cfg.OnState != nil {
		s.cfg.OnState(s.State())
	}
	return nil
}

// SetPositions writes every entry in positions, serialized through the bus.
// Returns true iff every write succeeded, per spec.md §4.6.2.
func (s *Session) SetPositions(positions map[robot.MotorName]int) bool {
	ok := true
	for name, pos := range positions {
		if err := s.MoveMotor(name, pos); err != nil {
			ok = false
		}
	}
	return ok
}
