package cipher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_8ByteAligned(t *testing.T) {
	h, err := New("R=U!LH$O2B#")
	require.NoError(t, err)

	plaintext := []byte("12345678abcdefgh") // 16 bytes, already aligned
	enc := h.EncryptToHex(plaintext)

	require.Len(t, enc, len(plaintext)*2)
	assert.Regexp(t, "^[0-9a-f]+$", enc)

	dec, err := h.DecryptFromHex(enc)
	require.NoError(t, err)
	assert.Equal(t, plaintext, dec)
}

func TestRoundTrip_PadsAndStripsTrailingNuls(t *testing.T) {
	h, err := New("test-key-123")
	require.NoError(t, err)

	plaintext := []byte("short")
	enc := h.EncryptToHex(plaintext)
	require.Equal(t, 16, len(enc)) // one 8-byte block, hex-doubled

	dec, err := h.DecryptFromHex(enc)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(dec), string(plaintext)))
	for _, b := range dec[len(plaintext):] {
		assert.Zero(t, b)
	}
}

func TestDecryptFromHex_RejectsOddLength(t *testing.T) {
	h, err := New("k")
	require.NoError(t, err)
	_, err = h.DecryptFromHex("abc") // odd length, also not a multiple of 16
	assert.Error(t, err)
}

func TestDecryptFromHex_RejectsNonHex(t *testing.T) {
	h, err := New("k")
	require.NoError(t, err)
	_, err = h.DecryptFromHex("zzzzzzzzzzzzzzzz") // 16 chars, not hex
	assert.Error(t, err)
}

func TestDecryptFromHex_RejectsNotMultipleOf16(t *testing.T) {
	h, err := New("k")
	require.NoError(t, err)
	_, err = h.DecryptFromHex("0123456789abcde") // 15 chars
	assert.Error(t, err)
}

func TestNewPair(t *testing.T) {
	p, err := NewPair("inKeyHere", "outKeyHere")
	require.NoError(t, err)
	require.NotNil(t, p.In)
	require.NotNil(t, p.Out)
}

func TestSyncTimeDecryption(t *testing.T) {
	// Mirrors the literal scenario in spec.md §8: decrypt a hex-encoded
	// Blowfish block, drop the first 4 bytes, parse the remainder as
	// decimal ASCII seconds.
	h, err := New("6#26FRL$ZWD")
	require.NoError(t, err)

	plaintext := append([]byte{0xde, 0xad, 0xbe, 0xef}, []byte("1700000000")...)
	enc := h.EncryptToHex(plaintext)

	dec, err := h.DecryptFromHex(enc)
	require.NoError(t, err)
	require.True(t, len(dec) >= 4)
	assert.Equal(t, "1700000000", strings.TrimRight(string(dec[4:]), "\x00"))
}
