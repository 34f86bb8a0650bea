package card

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.Seal("4000001234567899")
	require.NoError(t, err)
	require.False(t, bytes.Contains(sealed, []byte("4000001234567899")))

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "4000001234567899", plain)
}

func TestCipherSealUsesFreshNonce(t *testing.T) {
	c := newTestCipher(t)
	a, err := c.Seal("123")
	require.NoError(t, err)
	b, err := c.Seal("123")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCipherRejectsTamperedData(t *testing.T) {
	c := newTestCipher(t)
	sealed, err := c.Seal("123")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = c.Open(sealed)
	require.Error(t, err)

	_, err = c.Open([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestFingerprintIsDeterministicAndKeyed(t *testing.T) {
	c := newTestCipher(t)
	require.Equal(t, c.Fingerprint("4111111111111111"), c.Fingerprint("4111111111111111"))
	require.NotEqual(t, c.Fingerprint("4111111111111111"), c.Fingerprint("4111111111111129"))

	other, err := NewCipher(bytes.Repeat([]byte{0x07}, 32))
	require.NoError(t, err)
	require.NotEqual(t, c.Fingerprint("4111111111111111"), other.Fingerprint("4111111111111111"))
}

func TestNewCipherRejectsShortKey(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	require.Error(t, err)
}
