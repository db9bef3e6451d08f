package port

import (
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Fixed by the STS3215 family, not user-tunable. Per spec.md §4.1 / §6.
const (
	BaudRate = 1000000
	DataBits = 8
)

// SerialPort is the concrete Port backed by a native serial device, opened
// at 1,000,000 baud / 8N1 / no flow control. Grounded on the teacher's
// cmd/cli/read_servo.go use of go.bug.st/serial.
type SerialPort struct {
	port serial.Port
}

// OpenSerial opens path as an STS3215 bus port.
func OpenSerial(path string) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial port %s", path)
	}
	return &SerialPort{port: p}, nil
}

func (s *SerialPort) Write(b []byte) error {
	_, err := s.port.Write(b)
	if err != nil {
		return errors.Wrap(err, "serial write")
	}
	return nil
}

func (s *SerialPort) Read(deadline time.Duration) ([]byte, error) {
	if err := s.port.SetReadTimeout(deadline); err != nil {
		return nil, errors.Wrap(err, "set read timeout")
	}
	buf := make([]byte, 64)
	n, err := s.port.Read(buf)
	if err != nil {
		return nil, errors.Wrap(err, "serial read")
	}
	if n == 0 {
		return nil, ErrTimeout
	}
	return buf[:n], nil
}

func (s *SerialPort) FlushRX() {
	_ = s.port.ResetInputBuffer()
}

func (s *SerialPort) Close() error {
	return errors.Wrap(s.port.Close(), "serial close")
}
