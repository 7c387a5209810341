package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func FuzzSealOpen(f *testing.F) {
	// Add seed corpus
	f.Add([]byte{})                              // Empty plaintext
	f.Add([]byte("hello"))                       // Simple message
	f.Add([]byte("hello world, this is a test")) // Longer message
	f.Add(make([]byte, 1000))                    // Large message

	f.Fuzz(func(t *testing.T, plaintext []byte) {
		key := make([]byte, SessionKeySize)
		if _, err := rand.Read(key); err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}

		payload, err := SealMessage(SessionKey(key), plaintext)
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		// Invariant 1: payload has expected structure
		if len(payload.IV) != IVSize {
			t.Errorf("IV wrong size: got %d, want %d", len(payload.IV), IVSize)
		}
		if len(payload.AuthTag) != AuthTagSize {
			t.Errorf("auth tag wrong size: got %d, want %d", len(payload.AuthTag), AuthTagSize)
		}
		if len(payload.Ciphertext) != len(plaintext) {
			t.Errorf("ciphertext wrong size: got %d, want %d", len(payload.Ciphertext), len(plaintext))
		}

		// Invariant 2: round-trip preserves plaintext
		decrypted, err := OpenMessage(SessionKey(key), payload)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if !bytes.Equal(plaintext, decrypted) {
			t.Errorf("round trip failed: got %v, want %v", decrypted, plaintext)
		}

		// Invariant 3: wrong key fails authentication
		wrongKey := make([]byte, SessionKeySize)
		if _, err := rand.Read(wrongKey); err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		if _, err := OpenMessage(SessionKey(wrongKey), payload); err == nil {
			t.Error("open with wrong key should fail")
		}
	})
}

func FuzzSealedPayloadTampering(f *testing.F) {
	f.Add([]byte("test message"), 0)
	f.Add([]byte("another test"), 50)

	f.Fuzz(func(t *testing.T, plaintext []byte, tamperIndex int) {
		key := make([]byte, SessionKeySize)
		if _, err := rand.Read(key); err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}

		payload, err := SealMessage(SessionKey(key), plaintext)
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		// Flatten the payload, flip one byte, and rebuild it.
		flat := append(append(append([]byte{}, payload.IV...), payload.Ciphertext...), payload.AuthTag...)
		if len(flat) == 0 {
			t.Skip()
		}
		tamperIndex = tamperIndex % len(flat)
		if tamperIndex < 0 {
			tamperIndex = -tamperIndex
		}
		flat[tamperIndex] ^= 0xFF

		tampered := &SealedPayload{
			IV:         flat[:IVSize],
			Ciphertext: flat[IVSize : len(flat)-AuthTagSize],
			AuthTag:    flat[len(flat)-AuthTagSize:],
		}

		if _, err := OpenMessage(SessionKey(key), tampered); err == nil {
			t.Error("open of tampered payload should fail")
		}
	})
}
