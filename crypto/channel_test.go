package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSessionKey(t *testing.T) SessionKey {
	t.Helper()
	key := make([]byte, SessionKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return SessionKey(key)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := testSessionKey(t)

	for _, plaintext := range [][]byte{
		[]byte("hi"),
		[]byte(""),
		make([]byte, 4096),
	} {
		payload, err := SealMessage(key, plaintext)
		require.NoError(t, err)
		require.Len(t, payload.IV, IVSize)
		require.Len(t, payload.AuthTag, AuthTagSize)

		got, err := OpenMessage(key, payload)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	}
}

func TestSealMessage_FreshIVPerCall(t *testing.T) {
	key := testSessionKey(t)

	first, err := SealMessage(key, []byte("same plaintext"))
	require.NoError(t, err)
	second, err := SealMessage(key, []byte("same plaintext"))
	require.NoError(t, err)

	require.NotEqual(t, first.IV, second.IV)
	require.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestOpenMessage_WrongKeyFails(t *testing.T) {
	key := testSessionKey(t)
	payload, err := SealMessage(key, []byte("secret"))
	require.NoError(t, err)

	_, err = OpenMessage(testSessionKey(t), payload)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenMessage_SingleBitFlipFails(t *testing.T) {
	key := testSessionKey(t)
	plaintext := []byte("integrity protected")

	fields := []struct {
		name   string
		mutate func(p *SealedPayload)
	}{
		{"ciphertext", func(p *SealedPayload) { p.Ciphertext[0] ^= 0x01 }},
		{"iv", func(p *SealedPayload) { p.IV[0] ^= 0x01 }},
		{"authTag", func(p *SealedPayload) { p.AuthTag[0] ^= 0x01 }},
	}

	for _, tc := range fields {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := SealMessage(key, plaintext)
			require.NoError(t, err)

			tc.mutate(payload)
			got, err := OpenMessage(key, payload)
			require.ErrorIs(t, err, ErrDecryptionFailed)
			require.Nil(t, got, "tampering must never yield plaintext")
		})
	}
}

func TestOpenMessage_MalformedSizes(t *testing.T) {
	key := testSessionKey(t)
	payload, err := SealMessage(key, []byte("x"))
	require.NoError(t, err)

	short := &SealedPayload{IV: payload.IV[:4], Ciphertext: payload.Ciphertext, AuthTag: payload.AuthTag}
	_, err = OpenMessage(key, short)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	truncated := &SealedPayload{IV: payload.IV, Ciphertext: payload.Ciphertext, AuthTag: payload.AuthTag[:8]}
	_, err = OpenMessage(key, truncated)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = OpenMessage(key, nil)
	require.Error(t, err)
}
