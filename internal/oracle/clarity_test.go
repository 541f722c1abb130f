package oracle

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawUint and rawTupleEntry build wire bytes by hand so decoder tests do not
// depend on the encoder under test.
func rawUint(v uint64) []byte {
	out := make([]byte, 17)
	out[0] = 0x01
	binary.BigEndian.PutUint64(out[9:], v)
	return out
}

func rawTupleEntry(name string, v uint64) []byte {
	out := []byte{byte(len(name))}
	out = append(out, name...)
	return append(out, rawUint(v)...)
}

func rawOkTuple(entries ...[]byte) string {
	buf := []byte{0x07, 0x0c, 0, 0, 0, byte(len(entries))}
	for _, e := range entries {
		buf = append(buf, e...)
	}
	return "0x" + hex.EncodeToString(buf)
}

func TestEncodeClarityUint(t *testing.T) {
	arg, err := encodeClarityUint(500)
	require.NoError(t, err)
	assert.Equal(t, "01"+strings.Repeat("0", 29)+"1f4", hex.EncodeToString(arg))

	zero, err := encodeClarityUint(0)
	require.NoError(t, err)
	assert.Equal(t, "01"+strings.Repeat("0", 32), hex.EncodeToString(zero))
}

func TestEncodeClarityUint_RejectsNegative(t *testing.T) {
	_, err := encodeClarityUint(-1)
	require.Error(t, err)
}

func TestDecodeResponseTuple(t *testing.T) {
	result := rawOkTuple(
		rawTupleEntry("apy-a", 530),
		rawTupleEntry("tvl-a", 1_540_000_000_000),
		rawTupleEntry("apy-b", 210),
		rawTupleEntry("tvl-b", 770_000_000_000),
		rawTupleEntry("updated-at", 143250),
	)

	entries, err := decodeResponseTuple(result)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, int64(530), entries["apy-a"])
	assert.Equal(t, int64(1_540_000_000_000), entries["tvl-a"])
	assert.Equal(t, int64(210), entries["apy-b"])
	assert.Equal(t, int64(770_000_000_000), entries["tvl-b"])
	assert.Equal(t, int64(143250), entries["updated-at"])
}

func TestDecodeResponseTuple_SomeWrapped(t *testing.T) {
	inner := append([]byte{0x0c, 0, 0, 0, 1}, rawTupleEntry("apy-a", 42)...)
	buf := append([]byte{0x07, 0x0a}, inner...)

	entries, err := decodeResponseTuple(hex.EncodeToString(buf))
	require.NoError(t, err)
	assert.Equal(t, int64(42), entries["apy-a"])
}

func TestDecodeResponseTuple_BareTuple(t *testing.T) {
	buf := append([]byte{0x0c, 0, 0, 0, 1}, rawTupleEntry("apy-a", 7)...)

	entries, err := decodeResponseTuple("0x" + hex.EncodeToString(buf))
	require.NoError(t, err)
	assert.Equal(t, int64(7), entries["apy-a"])
}

func TestDecodeResponseTuple_ErrResponse(t *testing.T) {
	buf := append([]byte{0x08}, rawUint(1001)...)

	_, err := decodeResponseTuple("0x" + hex.EncodeToString(buf))
	require.ErrorIs(t, err, ErrClarityDecode)
	assert.ErrorContains(t, err, "(err")
}

func TestDecodeResponseTuple_None(t *testing.T) {
	_, err := decodeResponseTuple("0x0709")
	require.ErrorIs(t, err, ErrClarityDecode)
	assert.ErrorContains(t, err, "no data yet")
}

func TestDecodeResponseTuple_WrongEntryType(t *testing.T) {
	// A tuple whose entry is a bool rather than a uint.
	buf := []byte{0x07, 0x0c, 0, 0, 0, 1, 4, 'f', 'l', 'a', 'g', 0x03}

	_, err := decodeResponseTuple(hex.EncodeToString(buf))
	require.ErrorIs(t, err, ErrClarityDecode)
	assert.ErrorContains(t, err, "want uint")
}

func TestDecodeResponseTuple_Truncated(t *testing.T) {
	full := rawOkTuple(rawTupleEntry("apy-a", 530))
	truncated := full[:len(full)-10]

	_, err := decodeResponseTuple(truncated)
	require.ErrorIs(t, err, ErrClarityDecode)
}

func TestDecodeResponseTuple_NotHex(t *testing.T) {
	_, err := decodeResponseTuple("0xnothex")
	require.ErrorIs(t, err, ErrClarityDecode)
}

func TestDecodeResponseTuple_UintOverflowsInt64(t *testing.T) {
	entry := []byte{4, 'h', 'u', 'g', 'e'}
	big := make([]byte, 17)
	big[0] = 0x01
	big[1] = 0xff // beyond int64 range
	entry = append(entry, big...)

	buf := append([]byte{0x07, 0x0c, 0, 0, 0, 1}, entry...)
	_, err := decodeResponseTuple(hex.EncodeToString(buf))
	require.ErrorIs(t, err, ErrClarityDecode)
	assert.ErrorContains(t, err, "overflows")
}
