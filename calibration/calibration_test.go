package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/so100-go/armctl/protocol"
	"github.com/so100-go/armctl/robot"
)

// fakeEngine is a narrow, in-memory stand-in for *bus.Bus used to drive the
// calibration state machine without real timing or a fake port.
type fakeEngine struct {
	positions map[byte]int
	writes    []string
}

func newFakeEngine(ids []byte, start int) *fakeEngine {
	pos := make(map[byte]int, len(ids))
	for _, id := range ids {
		pos[id] = start
	}
	return &fakeEngine{positions: pos}
}

func (f *fakeEngine) ReleaseTorque(ids []byte) error { f.writes = append(f.writes, "release"); return nil }

func (f *fakeEngine) WriteU16(id byte, addr byte, value uint16) error {
	if addr == protocol.AddrHomingOffset {
		f.writes = append(f.writes, "homing")
	}
	return nil
}

func (f *fakeEngine) WriteU8(id byte, addr byte, value byte) error { return nil }

func (f *fakeEngine) ReadPositions(ids []byte) []uint16 {
	out := make([]uint16, len(ids))
	for i, id := range ids {
		out[i] = uint16(f.positions[id])
	}
	return out
}

func TestCalibrationHomingMathScenario(t *testing.T) {
	// spec.md §8 scenario 4: positions [2047,1800,2300,2047,2047,2047] ->
	// offsets [0,-247,+253,0,0,0].
	profile := robot.NewProfile(robot.VariantFollower)
	fe := &fakeEngine{positions: map[byte]int{1: 2047, 2: 1800, 3: 2300, 4: 2047, 5: 2047, 6: 2047}}

	p := calibrate(fe, profile, Callbacks{}, nil)
	time.Sleep(5 * time.Millisecond) // still inside HomingSettle; Stop is applied once Recording is entered
	p.Stop()
	rec, err := p.Result()
	require.NoError(t, err)

	assert.Equal(t, 0, rec[robot.ShoulderPan].HomingOffset)
	assert.Equal(t, -247, rec[robot.ShoulderLift].HomingOffset)
	assert.Equal(t, 253, rec[robot.ElbowFlex].HomingOffset)
}

func TestCalibrationRecordsTravelRange(t *testing.T) {
	profile := robot.NewProfile(robot.VariantFollower)
	fe := newFakeEngine(profile.MotorIDs[:], robot.MidTravel)

	var liveCount int
	p := calibrate(fe, profile, Callbacks{OnLive: func(LiveData) { liveCount++ }}, nil)

	for p.State() != Recording {
		time.Sleep(time.Millisecond)
	}
	// simulate moving shoulder_pan while recording
	fe.positions[1] = 1500
	time.Sleep(SweepRate * 3)
	fe.positions[1] = 2600
	time.Sleep(SweepRate * 3)

	p.Stop()
	rec, err := p.Result()
	require.NoError(t, err)

	assert.Equal(t, 1500, rec[robot.ShoulderPan].RangeMin)
	assert.Equal(t, 2600, rec[robot.ShoulderPan].RangeMax)
	assert.Greater(t, liveCount, 0)
}

func TestCalibrationInvariantViolationIsWarningNotFatal(t *testing.T) {
	profile := robot.NewProfile(robot.VariantFollower)
	fe := newFakeEngine(profile.MotorIDs[:], robot.MidTravel) // never moved

	var warned bool
	p := calibrate(fe, profile, Callbacks{OnProgress: func(msg string) {
		if len(msg) > 7 && msg[:7] == "warning" {
			warned = true
		}
	}}, nil)

	time.Sleep(5 * time.Millisecond)
	p.Stop()
	rec, err := p.Result()
	require.NoError(t, err) // invariant violation is non-fatal per spec.md §4.5
	assert.True(t, warned)
	assert.NotNil(t, rec)
}

func TestStopDuringReleasingIsDeferredToRecording(t *testing.T) {
	// spec.md §8 boundary: stop() during Releasing defers until Recording.
	profile := robot.NewProfile(robot.VariantFollower)
	fe := newFakeEngine(profile.MotorIDs[:], robot.MidTravel)

	p := calibrate(fe, profile, Callbacks{}, nil)
	p.Stop() // fired immediately, before Releasing/Homing even run
	rec, err := p.Result()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Done, p.State())
}
