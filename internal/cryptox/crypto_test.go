package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/matenet/backend/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testKey)
	require.NoError(t, err)
	return c
}

func TestNewCipher_RejectsWrongKeySize(t *testing.T) {
	for _, n := range []int{0, 16, 24, 31, 33} {
		_, err := NewCipher(bytes.Repeat([]byte{'k'}, n))
		assert.Error(t, err, "key size %d", n)
	}
}

func TestEncrypt_Format(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("hunter2")
	require.NoError(t, err)

	payload, iv, ok := strings.Cut(env, ";")
	require.True(t, ok)
	assert.Len(t, iv, 16)
	_, err = hex.DecodeString(payload)
	assert.NoError(t, err)

	env2, err := c.Encrypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, env, env2, "fresh iv per encryption")
}

func TestDecrypt_ReturnsBcryptHash(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("correct horse")
	require.NoError(t, err)

	hash, err := c.Decrypt(env)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, cost)
}

func TestDecrypt_KnownEnvelope(t *testing.T) {
	c := newTestCipher(t)

	// envelope built the way existing records were written: the 16 base64
	// characters are used directly as the IV.
	iv := "AAECAwQFBgcICQoL"
	plain := []byte("$2a$10$abcdefghijklmnopqrstuv")
	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	out := make([]byte, len(plain))
	cipher.NewCTR(block, []byte(iv)).XORKeyStream(out, plain)

	got, err := c.Decrypt(hex.EncodeToString(out) + ";" + iv)
	require.NoError(t, err)
	assert.Equal(t, string(plain), got)
}

func TestDecrypt_Malformed(t *testing.T) {
	c := newTestCipher(t)

	tests := []struct {
		name     string
		envelope string
	}{
		{name: "no delimiter", envelope: "abcdef"},
		{name: "short iv", envelope: "abcdef;short"},
		{name: "bad hex", envelope: "zz;AAECAwQFBgcICQoL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decrypt(tt.envelope)
			assert.True(t, errors.Is(err, common.ErrDecrypt), "got %v", err)
		})
	}
}

func TestVerifyPassword(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt("s3cret")
	require.NoError(t, err)

	assert.True(t, c.VerifyPassword("s3cret", env))
	assert.False(t, c.VerifyPassword("S3cret", env))
	assert.False(t, c.VerifyPassword("", env))
	assert.False(t, c.VerifyPassword("s3cret", "garbage"))

	other, err := NewCipher([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	assert.False(t, other.VerifyPassword("s3cret", env), "different key must not verify")
}

func TestVerifyPassword_LengthBoundary(t *testing.T) {
	c := newTestCipher(t)
	longest := strings.Repeat("p", MaxPasswordBytes)

	env, err := c.Encrypt(longest)
	require.NoError(t, err)

	assert.True(t, c.VerifyPassword(longest, env))
	assert.False(t, c.VerifyPassword(longest+"p", env), "bcrypt would ignore the 73rd byte")
}
