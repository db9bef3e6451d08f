package robot

import "github.com/pkg/errors"

// MotorCalibration is one entry of a CalibrationRecord, per spec.md §3.
// DriveMode is always 0 for this servo family; kept for forward
// compatibility with related families per the GLOSSARY.
type MotorCalibration struct {
	ID           byte  `json:"id"`
	DriveMode    int   `json:"drive_mode"`
	HomingOffset int   `json:"homing_offset"`
	RangeMin     int   `json:"range_min"`
	RangeMax     int   `json:"range_max"`
}

// CalibrationRecord maps MotorName to its calibration entry. Once produced
// it is immutable: re-calibration replaces the whole record, never patches
// fields (spec.md §3).
type CalibrationRecord map[MotorName]MotorCalibration

// ErrInvariantViolation reports a CalibrationRecord invariant breach:
// range_min >= range_max for some motor, per spec.md §4.5 / §7.
type ErrInvariantViolation struct {
	Motor  MotorName
	Reason string
}

func (e *ErrInvariantViolation) Error() string {
	return "calibration invariant violated for " + string(e.Motor) + ": " + e.Reason
}

// Validate checks the quantified invariant from spec.md §8: for every
// motor, 0 <= range_min < range_max <= 4095.
func (r CalibrationRecord) Validate() error {
	for name, m := range r {
		if m.RangeMin < 0 || m.RangeMax > 4095 || m.RangeMin >= m.RangeMax {
			return &ErrInvariantViolation{Motor: name, Reason: "range_min must be < range_max within [0,4095]"}
		}
	}
	return nil
}

// MatchesProfile reports whether r has exactly the six motor names p
// expects, per spec.md §4.7 ("keys do not exactly match... is a hard
// error").
func (r CalibrationRecord) MatchesProfile(p *Profile) error {
	if len(r) != len(p.MotorNames) {
		return errors.New("calibration record motor count does not match profile")
	}
	for _, name := range p.MotorNames {
		if _, ok := r[name]; !ok {
			return errors.Errorf("calibration record missing motor %q", name)
		}
	}
	return nil
}

// Equal reports whether r and other have identical entries for every motor.
func (r CalibrationRecord) Equal(other CalibrationRecord) bool {
	if len(r) != len(other) {
		return false
	}
	for name, m := range r {
		om, ok := other[name]
		if !ok || om != m {
			return false
		}
	}
	return true
}

// NormMode selects the unit convention Normalize/Denormalize convert
// through. This is a presentation-layer convenience, not a persisted field:
// the on-disk schema (spec.md §4.7) stays exactly six raw fields. Grounded
// on the teacher's calibrated_servo.go NormMode concept.
type NormMode int

const (
	NormModeRaw NormMode = iota
	NormModeRange100
	NormModeSigned100
	NormModeDegrees
)

// Normalize converts a raw position into mode's unit convention using m's
// recorded range.
func Normalize(mode NormMode, m MotorCalibration, raw int) float64 {
	span := m.RangeMax - m.RangeMin
	if span <= 0 {
		return 0
	}
	frac := float64(Clamp(raw, m.RangeMin, m.RangeMax)-m.RangeMin) / float64(span)
	switch mode {
	case NormModeRange100:
		return frac * 100
	case NormModeSigned100:
		return frac*200 - 100
	case NormModeDegrees:
		return frac * 360
	default:
		return float64(raw)
	}
}

// Denormalize is the inverse of Normalize.
func Denormalize(mode NormMode, m MotorCalibration, value float64) int {
	span := float64(m.RangeMax - m.RangeMin)
	var frac float64
	switch mode {
	case NormModeRange100:
		frac = value / 100
	case NormModeSigned100:
		frac = (value + 100) / 200
	case NormModeDegrees:
		frac = value / 360
	default:
		return int(value)
	}
	return Clamp(int(frac*span)+m.RangeMin, m.RangeMin, m.RangeMax)
}
