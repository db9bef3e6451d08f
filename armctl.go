// Package armctl is the public API surface of the SO-100 arm control core:
// open a port, release motors, calibrate, teleoperate, and load/save
// calibration records. It composes the port, bus, robot, calibration,
// teleop, and store packages; it holds no process-wide state (spec.md §9
// rejects the teacher's singleton registry — every RobotHandle here is
// owned exclusively by its caller).
package armctl

import (
	"go.uber.org/zap"

	"github.com/so100-go/armctl/calibration"
	"github.com/so100-go/armctl/port"
	"github.com/so100-go/armctl/robot"
	"github.com/so100-go/armctl/store"
	"github.com/so100-go/armctl/teleop"
)

// OpenPort opens a serial device at the fixed STS3215 baud/framing and
// returns a RobotHandle for variant. Per spec.md §6 open_port.
func OpenPort(path string, variant robot.Variant, log *zap.SugaredLogger) (*robot.Handle, error) {
	p, err := port.OpenSerial(path)
	if err != nil {
		return nil, err
	}
	profile := robot.NewProfile(variant)
	return robot.NewHandle(p, profile, log), nil
}

// ReleaseMotors writes Torque_Enable=0 for motorIDs, or all six motors if
// motorIDs is empty. Per spec.md §6.
func ReleaseMotors(h *robot.Handle, motorIDs []byte) error {
	return h.ReleaseMotors(motorIDs)
}

// Calibrate runs the calibration sequence against h, per spec.md §6.
func Calibrate(h *robot.Handle, cb calibration.Callbacks) *calibration.Process {
	return calibration.Calibrate(h, cb)
}

// Teleoperate starts a teleoperation session against h, per spec.md §6.
func Teleoperate(h *robot.Handle, cfg teleop.Config) *teleop.Session {
	s := teleop.New(h, cfg)
	s.Start()
	return s
}

// LoadCalibration loads deviceSerial's CalibrationRecord from s, per
// spec.md §6 load_calibration.
func LoadCalibration(s store.Store, deviceSerial string) (robot.CalibrationRecord, bool, error) {
	return s.Load(deviceSerial)
}

// SaveCalibration persists rec for deviceSerial via s, per spec.md §6
// save_calibration.
func SaveCalibration(s store.Store, deviceSerial string, rec robot.CalibrationRecord, sampleCount uint32) error {
	return s.Save(deviceSerial, rec, sampleCount)
}
