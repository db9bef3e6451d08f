package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/so100-go/armctl/robot"
)

func sampleRecord() robot.CalibrationRecord {
	r := robot.CalibrationRecord{}
	for i, name := range robot.MotorNames {
		r[name] = robot.MotorCalibration{ID: byte(i + 1), RangeMin: 1000, RangeMax: 3000}
	}
	return r
}

func TestFileStoreSaveThenLoadRoundTrip(t *testing.T) {
	// spec.md §8 round-trip law: save-then-load produces an equal record.
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "devices.json"), robot.NewProfile(robot.VariantFollower))

	rec := sampleRecord()
	require.NoError(t, s.Save("serial-1", rec, 120))

	loaded, ok, err := s.Load("serial-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Equal(loaded))
}

func TestFileStoreLoadMissingDevice(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "devices.json"), nil)

	_, ok, err := s.Load("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreRejectsInvalidRecordOnSave(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "devices.json"), nil)

	rec := sampleRecord()
	m := rec[robot.Gripper]
	m.RangeMax = m.RangeMin
	rec[robot.Gripper] = m

	err := s.Save("serial-1", rec, 1)
	require.Error(t, err)
}

func TestFileStoreDelete(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "devices.json"), nil)
	require.NoError(t, s.Save("serial-1", sampleRecord(), 1))

	require.NoError(t, s.Delete("serial-1"))
	_, ok, err := s.Load("serial-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirStoreSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewDirStore(dir, robot.NewProfile(robot.VariantFollower))

	rec := sampleRecord()
	require.NoError(t, s.Save("serial-2", rec, 50))

	loaded, ok, err := s.Load("serial-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Equal(loaded))
}

func TestDirStoreLoadSchemaMismatchIsHardError(t *testing.T) {
	// spec.md §4.7: "Loading a record whose keys do not exactly match the
	// profile's motor names is a hard error."
	dir := t.TempDir()
	profile := robot.NewProfile(robot.VariantFollower)
	s := NewDirStore(dir, profile)

	incomplete := robot.CalibrationRecord{robot.ShoulderPan: {ID: 1, RangeMin: 0, RangeMax: 100}}
	// Save checks only the range invariant, not motor names, so the
	// incomplete record is written as-is (here through a store with no
	// profile configured) and the name check happens on Load.
	raw := NewDirStore(dir, nil)
	require.NoError(t, raw.Save("serial-3", incomplete, 1))

	_, _, err := s.Load("serial-3")
	require.Error(t, err)
}
