package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUvarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 1 << 40, ^uint64(0)}
	for _, x := range cases {
		buf := appendUvarint(nil, x)
		got, rest, err := readUvarint(buf)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, x, got)
		require.Equal(t, varintSize(x), len(buf))
	}
}

func TestReadUvarintTruncated(t *testing.T) {
	_, _, err := readUvarint([]byte{0x80, 0x80})
	require.Error(t, err)
}

func TestSizedStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "StringKey", "with spaces and punctuation!"} {
		buf := appendSizedString(nil, s)
		got, rest, err := readSizedString(buf)
		require.NoError(t, err)
		require.Empty(t, rest)
		require.Equal(t, s, got)
	}
}
