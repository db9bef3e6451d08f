// Package store persists per-device CalibrationRecords as schema-stable
// JSON, keyed by device serial. Grounded on the teacher's config.go
// CalibrationFileFormat / Save/LoadFullCalibrationToFile (fixed six-field
// schema, json.MarshalIndent, 0644 permissions).
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/so100-go/armctl/robot"
)

// Metadata mirrors spec.md §3 DeviceRecord.metadata.
type Metadata struct {
	SavedAt     time.Time `json:"saved_at"`
	SampleCount uint32    `json:"sample_count"`
}

// DeviceRecord is the on-disk unit from spec.md §3: a device serial, its
// optional CalibrationRecord, and metadata.
type DeviceRecord struct {
	DeviceSerial string                  `json:"device_serial"`
	Calibration  robot.CalibrationRecord `json:"calibration,omitempty"`
	Metadata     Metadata                `json:"metadata"`
}

// Store is the persisted device registry contract from spec.md §4.7. The
// on-disk layout (single document vs one file per device) is
// implementation-defined; both FileStore and DirStore below implement it.
type Store interface {
	Load(deviceSerial string) (robot.CalibrationRecord, bool, error)
	Save(deviceSerial string, rec robot.CalibrationRecord, sampleCount uint32) error
	Delete(deviceSerial string) error
}

// ErrSchemaMismatch is a hard error per spec.md §4.7: a loaded record whose
// keys do not exactly match the profile's motor names.
var ErrSchemaMismatch = errors.New("store: calibration record does not match expected motor names")

func marshalRecord(rec robot.CalibrationRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

func unmarshalRecord(data []byte, profile *robot.Profile) (robot.CalibrationRecord, error) {
	var rec robot.CalibrationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decode calibration record")
	}
	if profile != nil {
		if err := rec.MatchesProfile(profile); err != nil {
			return nil, errors.Wrap(ErrSchemaMismatch, err.Error())
		}
	}
	return rec, nil
}

// FileStore keeps every device's DeviceRecord in one JSON document, a map
// from device_serial to DeviceRecord. Grounded on the teacher's single
// calibration-file-per-port layout, generalized to one shared document
// keyed by serial.
type FileStore struct {
	mu      sync.Mutex
	path    string
	profile *robot.Profile
}

// NewFileStore opens (without yet reading) a single-document store at path.
// profile, if non-nil, is used to validate loaded records against expected
// motor names.
func NewFileStore(path string, profile *robot.Profile) *FileStore {
	return &FileStore{path: path, profile: profile}
}

func (s *FileStore) readAll() (map[string]DeviceRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]DeviceRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read calibration store")
	}
	var all map[string]DeviceRecord
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errors.Wrap(err, "decode calibration store")
	}
	return all, nil
}

func (s *FileStore) writeAll(all map[string]DeviceRecord) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode calibration store")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create calibration store directory")
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "write calibration store")
	}
	return nil
}

// Load returns deviceSerial's CalibrationRecord, or ok=false if absent.
func (s *FileStore) Load(deviceSerial string) (robot.CalibrationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return nil, false, err
	}
	rec, ok := all[deviceSerial]
	if !ok {
		return nil, false, nil
	}
	if s.profile != nil {
		if err := rec.Calibration.MatchesProfile(s.profile); err != nil {
			return nil, false, errors.Wrap(ErrSchemaMismatch, err.Error())
		}
	}
	return rec.Calibration, true, nil
}

// Save persists rec for deviceSerial, replacing any prior record wholesale
// (spec.md §3: "re-calibration replaces the whole record, never patches").
func (s *FileStore) Save(deviceSerial string, rec robot.CalibrationRecord, sampleCount uint32) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	all[deviceSerial] = DeviceRecord{
		DeviceSerial: deviceSerial,
		Calibration:  rec,
		Metadata:     Metadata{SavedAt: now(), SampleCount: sampleCount},
	}
	return s.writeAll(all)
}

// Delete removes deviceSerial's record, per spec.md §3 Lifecycle ("destroyed
// only by an explicit user deletion").
func (s *FileStore) Delete(deviceSerial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.readAll()
	if err != nil {
		return err
	}
	delete(all, deviceSerial)
	return s.writeAll(all)
}

// now is a var so tests can pin the timestamp deterministically.
var now = time.Now

// DirStore keeps one JSON file per device, named "<device_serial>.json"
// under dir. The same CalibrationRecord schema applies to each file's
// contents.
type DirStore struct {
	mu      sync.Mutex
	dir     string
	profile *robot.Profile
}

// NewDirStore opens a one-file-per-device store rooted at dir.
func NewDirStore(dir string, profile *robot.Profile) *DirStore {
	return &DirStore{dir: dir, profile: profile}
}

func (s *DirStore) pathFor(deviceSerial string) string {
	return filepath.Join(s.dir, deviceSerial+".json")
}

func (s *DirStore) Load(deviceSerial string) (robot.CalibrationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.pathFor(deviceSerial))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read device calibration file")
	}
	rec, err := unmarshalRecord(data, s.profile)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *DirStore) Save(deviceSerial string, rec robot.CalibrationRecord, sampleCount uint32) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "create device calibration directory")
	}
	data, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(s.pathFor(deviceSerial), data, 0o644), "write device calibration file")
}

func (s *DirStore) Delete(deviceSerial string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.pathFor(deviceSerial))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrap(err, "delete device calibration file")
}
