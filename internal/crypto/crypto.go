// Package crypto implements the gateway's AEAD envelope encryption over
// target payloads: ChaCha20-Poly1305 with a single active 32-byte key,
// swapped atomically on rotation.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ocx/gateway/internal/gwerrors"
)

// KeySize is the required length of key material, per spec.md §3.
const KeySize = chacha20poly1305.KeySize // 32

// Key is an encryption key record. Only the active key is used for new
// encryptions; any non-expired key may be used to decrypt if the service
// is extended to hold a key history (it currently holds one active key).
type Key struct {
	ID     string
	Name   string
	Secret [KeySize]byte
}

// Service performs AEAD encrypt/decrypt of payload envelopes using the
// single active key, loaded once at startup and swappable via Rotate
// without a lock on the read path (sync/atomic pointer swap).
type Service struct {
	active atomic.Pointer[Key]
}

// NewService constructs a Service with no active key. Encrypt/Decrypt
// return CryptoError until SetActiveKey is called.
func NewService() *Service {
	return &Service{}
}

// SetActiveKey installs key as the active encryption key.
func (s *Service) SetActiveKey(key *Key) {
	s.active.Store(key)
}

// Rotate is an alias for SetActiveKey naming the operational intent.
func (s *Service) Rotate(key *Key) {
	s.SetActiveKey(key)
}

// ActiveKeyID returns the id of the active key, or "" if none is set.
func (s *Service) ActiveKeyID() string {
	k := s.active.Load()
	if k == nil {
		return ""
	}
	return k.ID
}

func (s *Service) aead() (cipher.AEAD, error) {
	k := s.active.Load()
	if k == nil {
		return nil, gwerrors.New(gwerrors.KindCrypto, gwerrors.CodeNoActiveKey, "no active encryption key")
	}
	return newAEAD(k.Secret[:])
}

func newAEAD(secret []byte) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.New(secret)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeInvalidKey, "invalid key material", err)
	}
	return aead, nil
}

// EncryptData encrypts plaintext with the active key, returning the
// ciphertext (including the appended 16-byte Poly1305 tag) and the
// 12-byte random nonce used, mirroring encrypt_data(plaintext) ->
// (ciphertext, nonce).
func (s *Service) EncryptData(plaintext []byte) (ciphertext, nonce []byte, err error) {
	k := s.active.Load()
	if k == nil {
		return nil, nil, gwerrors.New(gwerrors.KindCrypto, gwerrors.CodeNoActiveKey, "no active encryption key")
	}
	aead, err := newAEAD(k.Secret[:])
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeEncryptFailed, "nonce generation failed", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptData reverses EncryptData given the ciphertext and the nonce
// used to produce it.
func (s *Service) DecryptData(ciphertext, nonce []byte) ([]byte, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, gwerrors.New(gwerrors.KindCrypto, gwerrors.CodeDecryptFailed, "invalid nonce length")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeDecryptFailed, "decryption failed", err)
	}
	return plaintext, nil
}

// WrapPayload JSON-encodes payload, encrypts it, and returns the wire
// envelope {"encrypted_payload": base64(nonce||ciphertext||tag)} per
// spec.md §4.6/§6.
func (s *Service) WrapPayload(payload map[string]any) (map[string]any, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeEncryptFailed, "payload marshal failed", err)
	}

	ciphertext, nonce, err := s.EncryptData(plaintext)
	if err != nil {
		return nil, err
	}

	wire := make([]byte, 0, len(nonce)+len(ciphertext))
	wire = append(wire, nonce...)
	wire = append(wire, ciphertext...)

	return map[string]any{
		"encrypted_payload": base64.StdEncoding.EncodeToString(wire),
	}, nil
}

// UnwrapPayload reverses WrapPayload, decoding the base64 wire envelope,
// splitting nonce||ciphertext, decrypting, and JSON-decoding the result.
func (s *Service) UnwrapPayload(encryptedPayload string) (map[string]any, error) {
	wire, err := base64.StdEncoding.DecodeString(encryptedPayload)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeDecryptFailed, "invalid base64 envelope", err)
	}
	if len(wire) < chacha20poly1305.NonceSize {
		return nil, gwerrors.New(gwerrors.KindCrypto, gwerrors.CodeDecryptFailed, "envelope shorter than nonce")
	}

	nonce := wire[:chacha20poly1305.NonceSize]
	ciphertext := wire[chacha20poly1305.NonceSize:]

	plaintext, err := s.DecryptData(ciphertext, nonce)
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindCrypto, gwerrors.CodeDecryptFailed, "decrypted payload is not valid JSON", err)
	}
	return payload, nil
}
