package crypto

import (
	"testing"

	"github.com/ocx/gateway/internal/gwerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() *Key {
	var secret [KeySize]byte
	for i := range secret {
		secret[i] = byte(i)
	}
	return &Key{ID: "k1", Name: "test", Secret: secret}
}

func TestEncryptDecryptData_RoundTrips(t *testing.T) {
	s := NewService()
	s.SetActiveKey(testKey())

	plaintext := []byte("hello-encryption")
	ciphertext, nonce, err := s.EncryptData(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := s.DecryptData(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestWrapUnwrapPayload_RoundTrips(t *testing.T) {
	s := NewService()
	s.SetActiveKey(testKey())

	payload := map[string]any{"message": "hello", "value": 42.0}
	wrapped, err := s.WrapPayload(payload)
	require.NoError(t, err)
	assert.Contains(t, wrapped, "encrypted_payload")

	unwrapped, err := s.UnwrapPayload(wrapped["encrypted_payload"].(string))
	require.NoError(t, err)
	assert.Equal(t, payload, unwrapped)
}

func TestDecryptData_WithoutActiveKeyFails(t *testing.T) {
	s := NewService()
	_, _, err := s.EncryptData([]byte("x"))
	require.Error(t, err)
	code, ok := gwerrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, gwerrors.CodeNoActiveKey, code)
}

func TestUnwrapPayload_InvalidEnvelopeFails(t *testing.T) {
	s := NewService()
	s.SetActiveKey(testKey())

	_, err := s.UnwrapPayload("not-valid-base64!!!")
	require.Error(t, err)
	code, _ := gwerrors.CodeOf(err)
	assert.Equal(t, gwerrors.CodeDecryptFailed, code)
}

func TestDecryptData_TamperedCiphertextFails(t *testing.T) {
	s := NewService()
	s.SetActiveKey(testKey())

	ciphertext, nonce, err := s.EncryptData([]byte("hello"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = s.DecryptData(ciphertext, nonce)
	require.Error(t, err)
	code, _ := gwerrors.CodeOf(err)
	assert.Equal(t, gwerrors.CodeDecryptFailed, code)
}

func TestRotate_SwapsActiveKey(t *testing.T) {
	s := NewService()
	s.SetActiveKey(testKey())
	assert.Equal(t, "k1", s.ActiveKeyID())

	var secret2 [KeySize]byte
	s.Rotate(&Key{ID: "k2", Secret: secret2})
	assert.Equal(t, "k2", s.ActiveKeyID())
}
