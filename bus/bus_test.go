package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/so100-go/armctl/internal/fakeport"
	"github.com/so100-go/armctl/protocol"
)

func TestReadU16Success(t *testing.T) {
	fp := fakeport.New()
	fp.Responder = func(written []byte) []byte {
		return protocol.BuildStatus(written[2], 0, []byte{0x00, 0x08})
	}
	b := New(fp, nil)

	v, err := b.ReadU16(1, protocol.AddrPresentPosition)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0800), v)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x38, 0x02, 0xBE}, fp.LastSent())
}

func TestWriteU16Success(t *testing.T) {
	fp := fakeport.New()
	fp.Responder = func(written []byte) []byte {
		return protocol.BuildStatus(written[2], 0, nil)
	}
	b := New(fp, nil)

	err := b.WriteU16(3, protocol.AddrGoalPosition, 0x0800)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x03, 0x05, 0x03, 0x2A, 0x00, 0x08, 0xC2}, fp.LastSent())
}

func TestReadU16ExhaustsToNoResponse(t *testing.T) {
	fp := fakeport.New() // no responder queued: every read times out
	b := New(fp, nil)

	_, err := b.ReadU16(1, protocol.AddrPresentPosition)
	require.Error(t, err)
	var busErr *Error
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, KindNoResponse, busErr.Kind)
	assert.Len(t, fp.Sent, MaxAttempts)
}

func TestReadU16RetriesThenSucceeds(t *testing.T) {
	fp := fakeport.New()
	calls := 0
	fp.Responder = func(written []byte) []byte {
		calls++
		if calls < 2 {
			return nil // simulate silent servo on first attempt
		}
		return protocol.BuildStatus(written[2], 0, []byte{0x00, 0x08})
	}
	b := New(fp, nil)

	v, err := b.ReadU16(1, protocol.AddrPresentPosition)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0800), v)
	assert.Equal(t, 2, calls)
}

func TestReadU16ServoError(t *testing.T) {
	fp := fakeport.New()
	fp.Responder = func(written []byte) []byte {
		return protocol.BuildStatus(written[2], 0x01, nil)
	}
	b := New(fp, nil)

	_, err := b.ReadU16(1, protocol.AddrPresentPosition)
	require.Error(t, err)
	var busErr *Error
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, KindServo, busErr.Kind)
	assert.Equal(t, byte(0x01), busErr.ErrByte)
	// Non-zero ERR is an attempt-failure like timeout/malformed: retried up
	// to MaxAttempts and only surfaced on exhaustion (spec.md §4.3 / §7).
	assert.Len(t, fp.Sent, MaxAttempts)
}

func TestReadPositionsFallsBackToMidTravelOnExhaustion(t *testing.T) {
	fp := fakeport.New()
	fp.Responder = func(written []byte) []byte {
		id := written[2]
		if id == 2 {
			return nil // motor 2 never responds
		}
		return protocol.BuildStatus(id, 0, []byte{0xFF, 0x07}) // 0x07FF = 2047
	}
	b := New(fp, nil)

	positions := b.ReadPositions([]byte{1, 2, 3})
	require.Len(t, positions, 3)
	assert.Equal(t, uint16(2047), positions[0])
	assert.Equal(t, MidTravel, positions[1]) // fallback, bulk call still succeeds
	assert.Equal(t, uint16(2047), positions[2])
}

func TestReleaseAndEnableTorque(t *testing.T) {
	fp := fakeport.New()
	fp.Responder = func(written []byte) []byte {
		return protocol.BuildStatus(written[2], 0, nil)
	}
	b := New(fp, nil)

	require.NoError(t, b.ReleaseTorque([]byte{1, 2}))
	require.NoError(t, b.EnableTorque([]byte{1, 2}))
	assert.Len(t, fp.Sent, 4)
}
