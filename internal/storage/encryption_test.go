package storage

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(size int) []byte {
	key := make([]byte, size)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	enc, err := NewEncryption(testKey(32))
	require.NoError(t, err)

	plaintext := []byte("# Converted\n\nPage one.")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "Converted")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	enc, err := NewEncryption(testKey(32))
	require.NoError(t, err)
	other, err := NewEncryption(make([]byte, 32))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	enc, err := NewEncryption(testKey(16))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = enc.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestNewEncryption_RejectsBadKeySize(t *testing.T) {
	_, err := NewEncryption([]byte("too-short"))
	assert.Error(t, err)
}

func TestNewEncryptionFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testKey(32))

	enc, err := NewEncryptionFromBase64(encoded)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)
	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), decrypted)

	_, err = NewEncryptionFromBase64("")
	assert.Error(t, err)
	_, err = NewEncryptionFromBase64("not-base64!!")
	assert.Error(t, err)
}

func TestEncryptJSONRoundtrip(t *testing.T) {
	enc, err := NewEncryption(testKey(32))
	require.NoError(t, err)

	type payload struct {
		Markdown string `json:"markdown"`
		Pages    int    `json:"pages"`
	}
	in := payload{Markdown: "# Converted", Pages: 3}

	ciphertext, err := enc.EncryptJSON(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, enc.DecryptJSON(ciphertext, &out))
	assert.Equal(t, in, out)
}
