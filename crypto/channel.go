package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrDecryptionFailed is returned when an authenticated decryption does not
// verify: tampered ciphertext, wrong key, or corrupted transport. Callers
// must report it to the audit sink rather than swallow it.
var ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

const (
	// IVSize is the AES-GCM initialization vector length in bytes.
	IVSize = 12
	// AuthTagSize is the detached GCM authentication tag length in bytes.
	AuthTagSize = 16
)

// SealedPayload contains one AEAD-protected message.
// The auth tag is carried detached from the ciphertext so stores and relays
// can index the parts independently.
type SealedPayload struct {
	IV         []byte // Fresh random IV, never reused under the same key
	Ciphertext []byte // AES-256-GCM ciphertext without the tag
	AuthTag    []byte // Detached GCM authentication tag
}

// SealMessage encrypts plaintext under the derived session key with
// AES-256-GCM. A fresh random IV is generated per call; IV reuse under the
// same key breaks both confidentiality and integrity of GCM.
func SealMessage(key SessionKey, plaintext []byte) (*SealedPayload, error) {
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", SessionKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcm.Overhead()

	return &SealedPayload{
		IV:         iv,
		Ciphertext: sealed[:split],
		AuthTag:    sealed[split:],
	}, nil
}

// OpenMessage authenticates and decrypts a sealed payload. Any failure to
// verify — a flipped bit in the ciphertext, IV, or tag — yields
// ErrDecryptionFailed, never wrong plaintext.
func OpenMessage(key SessionKey, payload *SealedPayload) ([]byte, error) {
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", SessionKeySize, len(key))
	}
	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	if len(payload.IV) != gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	if len(payload.AuthTag) != gcm.Overhead() {
		return nil, ErrDecryptionFailed
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+len(payload.AuthTag))
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.AuthTag...)

	plaintext, err := gcm.Open(nil, payload.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
