package robot

import (
	"go.uber.org/zap"

	"github.com/so100-go/armctl/bus"
	"github.com/so100-go/armctl/port"
)

// Handle is a RobotHandle: a Port paired with its RobotProfile, owning a
// single Bus. It is created when a port is opened and destroyed when
// closed; the port is torque-disabled on destruction, best-effort (spec.md
// §3 Lifecycle).
//
// Deliberately not a singleton: spec.md §9 rejects the teacher's
// process-wide registry/globalRegistry pattern precisely because two UIs
// opening two arms through shared state produces aliasing bugs. Each Handle
// is owned exclusively by its caller.
type Handle struct {
	Port    port.Port
	Profile *Profile
	Bus     *bus.Bus
	log     *zap.SugaredLogger
}

// NewHandle constructs a Handle over an already-open port.
func NewHandle(p port.Port, profile *Profile, log *zap.SugaredLogger) *Handle {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handle{
		Port:    p,
		Profile: profile,
		Bus:     bus.New(p, log),
		log:     log,
	}
}

// ReleaseMotors writes Torque_Enable=0 for the given ids, or all six motors
// in the profile if ids is empty. Convenience per spec.md §6.
func (h *Handle) ReleaseMotors(ids []byte) error {
	if len(ids) == 0 {
		ids = h.Profile.MotorIDs[:]
	}
	return h.Bus.ReleaseTorque(ids)
}

// Close torque-disables the motors (best-effort) and closes the underlying
// port, per spec.md §3 Lifecycle.
func (h *Handle) Close() error {
	_ = h.ReleaseMotors(nil)
	return h.Port.Close()
}
