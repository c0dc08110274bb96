package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(42, 256)
	p.PushEntry([]byte("key1"), []byte("value1"))
	p.PushEntry([]byte("key2"), []byte(""))

	buf := make([]byte, p.Capacity())
	n, err := Encode(p, buf)
	require.NoError(t, err)
	require.EqualValues(t, p.Size(), n)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(42), decoded.ID())
	require.EqualValues(t, 256, decoded.Capacity())

	entries := decoded.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, "key1", string(entries[0].Key))
	require.Equal(t, "value1", string(entries[0].Value))
	require.Equal(t, "key2", string(entries[1].Key))
	require.Empty(t, entries[1].Value)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	p := New(0, 64)
	buf := make([]byte, 64)
	Encode(p, buf)
	buf[0] = 'X'

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeRejectsCRCMismatch(t *testing.T) {
	p := New(0, 64)
	p.PushEntry([]byte("k"), []byte("v"))
	buf := make([]byte, 64)
	Encode(p, buf)
	buf[36] ^= 0xFF // flip a byte inside the entry payload

	_, err := Decode(buf)
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	p := New(0, 64)
	p.PushEntry([]byte("key"), []byte("value"))
	buf := make([]byte, 64)
	Encode(p, buf)

	_, err := Decode(buf[:28])
	require.ErrorIs(t, err, ErrTruncated)
}
