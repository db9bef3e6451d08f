package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReadChecksum(t *testing.T) {
	pkt := BuildRead(1, AddrPresentPosition, 2)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x38, 0x02, 0xBE}, pkt)
}

func TestBuildWriteU16Checksum(t *testing.T) {
	pkt := BuildWriteU16(3, AddrGoalPosition, 0x0800)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x03, 0x05, 0x03, 0x2A, 0x00, 0x08, 0xC2}, pkt)
}

func TestSignMagnitudeRoundTrip(t *testing.T) {
	for v := -2047; v <= 2047; v += 17 {
		enc, err := EncodeSignMagnitude(v)
		require.NoError(t, err)
		assert.Equal(t, v, DecodeSignMagnitude(enc))
	}
}

func TestSignMagnitudeScenario(t *testing.T) {
	cases := []struct {
		v    int
		want uint16
	}{
		{-1, 0x0801},
		{1, 0x0001},
		{-2047, 0x0FFF},
	}
	for _, c := range cases {
		got, err := EncodeSignMagnitude(c.v)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
	assert.Equal(t, -2047, DecodeSignMagnitude(0x0FFF))
}

func TestEncodeSignMagnitudeOutOfRange(t *testing.T) {
	_, err := EncodeSignMagnitude(2048)
	require.Error(t, err)
	var target *ErrOutOfRange
	require.ErrorAs(t, err, &target)
}

func TestParseStatusSuccess(t *testing.T) {
	// Status packet for id=1, err=0, data=[0x00,0x08]: FF FF 01 04 00 00 08 CHK
	body := []byte{0x01, 0x04, 0x00, 0x00, 0x08}
	chk := checksum(body)
	raw := append([]byte{0xFF, 0xFF}, body...)
	raw = append(raw, chk)

	pkt, err := ParseStatus(raw, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0), pkt.Err)
	assert.Equal(t, []byte{0x00, 0x08}, pkt.Params)
}

func TestParseStatusWrongID(t *testing.T) {
	body := []byte{0x02, 0x04, 0x00, 0x00, 0x08}
	chk := checksum(body)
	raw := append([]byte{0xFF, 0xFF}, body...)
	raw = append(raw, chk)

	_, err := ParseStatus(raw, 1)
	require.Error(t, err)
}

func TestParseStatusShortReply(t *testing.T) {
	_, err := ParseStatus([]byte{0xFF, 0xFF, 0x01}, 1)
	require.Error(t, err)
}

func TestParseStatusChecksumMismatch(t *testing.T) {
	raw := []byte{0xFF, 0xFF, 0x01, 0x04, 0x00, 0x00, 0x08, 0x00}
	_, err := ParseStatus(raw, 1)
	require.Error(t, err)
}

func TestParseStatusNonZeroErr(t *testing.T) {
	body := []byte{0x01, 0x02, 0x01}
	chk := checksum(body)
	raw := append([]byte{0xFF, 0xFF}, body...)
	raw = append(raw, chk)

	pkt, err := ParseStatus(raw, 1)
	require.NoError(t, err)
	assert.NotEqual(t, byte(0), pkt.Err)
}

func TestDecodeU16LE(t *testing.T) {
	assert.Equal(t, uint16(0x0800), DecodeU16LE([]byte{0x00, 0x08}))
}
