// Package robot defines the static description of an SO-100-family arm: its
// motor ids/names, key bindings, and the per-instance handle (Port +
// RobotProfile) engines are built from. Grounded on the teacher's
// calibration.go servoNames table and config.go SO101FullCalibration
// per-joint layout, restated as an immutable profile value instead of a map
// literal repeated per file.
package robot

// MotorName is one of the six ordered joint names. Index is the protocol
// order used for bulk operations and the order the keyboard bindings
// reference, per spec.md §3.
type MotorName string

const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// MotorNames is the canonical, ordered joint list for the SO-100 family.
var MotorNames = [6]MotorName{ShoulderPan, ShoulderLift, ElbowFlex, WristFlex, WristRoll, Gripper}

// Resolution is the servo's absolute position resolution.
const Resolution = 4096

// MidTravel is the center of the position range: floor((resolution-1)/2).
const MidTravel = (Resolution - 1) / 2

// Variant distinguishes the leader (hand-moved) and follower (mirrors
// leader) physical roles. They are protocol-identical; the tag is kept
// solely for the persisted record and UI, per spec.md §3 / §9.
type Variant string

const (
	VariantLeader   Variant = "leader"
	VariantFollower Variant = "follower"
)

// KeyCode identifies a keyboard key in a controller-agnostic way.
type KeyCode string

// Canonical SO-100 emergency-stop key.
const EmergencyStopKey KeyCode = "Esc"

// Binding maps one key to a motor and a unit direction.
type Binding struct {
	Motor MotorName
	Dir   int8 // +1 or -1
}

// Profile is the static table keyed by variant (spec.md §4.4). For the
// SO-100 family both variants share identical ids, names, and register
// layout.
type Profile struct {
	Variant          Variant
	MotorIDs         [6]byte
	MotorNames       [6]MotorName
	Resolution       int
	KeyBindings      map[KeyCode]Binding
	EmergencyStopKey KeyCode
}

// defaultKeyBindings is the canonical SO-100 binding table from spec.md
// §4.4: arrow keys -> shoulder_pan/lift; W/S -> elbow_flex; A/D ->
// wrist_flex; Q/E -> wrist_roll; O/C -> gripper; Esc -> emergency stop.
func defaultKeyBindings() map[KeyCode]Binding {
	return map[KeyCode]Binding{
		"ArrowLeft":  {Motor: ShoulderPan, Dir: -1},
		"ArrowRight": {Motor: ShoulderPan, Dir: +1},
		"ArrowUp":    {Motor: ShoulderLift, Dir: +1},
		"ArrowDown":  {Motor: ShoulderLift, Dir: -1},
		"W":          {Motor: ElbowFlex, Dir: +1},
		"S":          {Motor: ElbowFlex, Dir: -1},
		"A":          {Motor: WristFlex, Dir: -1},
		"D":          {Motor: WristFlex, Dir: +1},
		"Q":          {Motor: WristRoll, Dir: -1},
		"E":          {Motor: WristRoll, Dir: +1},
		"O":          {Motor: Gripper, Dir: +1},
		"C":          {Motor: Gripper, Dir: -1},
	}
}

// NewProfile builds the canonical SO-100 profile for variant. Both variants
// use motor ids [1..6] and identical names/bindings.
func NewProfile(variant Variant) *Profile {
	return &Profile{
		Variant:          variant,
		MotorIDs:         [6]byte{1, 2, 3, 4, 5, 6},
		MotorNames:       MotorNames,
		Resolution:       Resolution,
		KeyBindings:      defaultKeyBindings(),
		EmergencyStopKey: EmergencyStopKey,
	}
}

// IDFor returns the canonical motor id for name.
func (p *Profile) IDFor(name MotorName) (byte, bool) {
	for i, n := range p.MotorNames {
		if n == name {
			return p.MotorIDs[i], true
		}
	}
	return 0, false
}

// Clamp restricts v to [min, max].
func Clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
