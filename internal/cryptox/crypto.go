// Package cryptox implements the at-rest envelope for user credentials:
// a bcrypt hash of the secret, encrypted with AES-256-CTR under a
// process-wide key. The stored form is "<hex ciphertext>;<iv>".
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/matenet/backend/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const (
	// KeySize is the required cipher key length (AES-256).
	KeySize = 32

	// BcryptCost matches the cost used for records already in storage.
	BcryptCost = 10

	// MaxPasswordBytes is the longest secret bcrypt hashes without truncation.
	MaxPasswordBytes = 72

	ivRandomBytes = 12
	ivSize        = aes.BlockSize
	delimiter     = ";"
)

// Cipher encrypts and decrypts credential envelopes. It is safe for
// concurrent use.
type Cipher struct {
	block cipher.Block
}

// NewCipher builds a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block}, nil
}

// newIV returns 12 random bytes rendered as 16 base64 characters; the
// characters themselves are the IV bytes.
func newIV() (string, error) {
	raw := make([]byte, ivRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Encrypt hashes plain with bcrypt and encrypts the hash.
func (c *Cipher) Encrypt(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}

	iv, err := newIV()
	if err != nil {
		return "", err
	}

	out := make([]byte, len(hash))
	cipher.NewCTR(c.block, []byte(iv)).XORKeyStream(out, hash)

	return hex.EncodeToString(out) + delimiter + iv, nil
}

// Decrypt returns the bcrypt hash stored inside an envelope produced by
// Encrypt.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	payload, iv, ok := strings.Cut(envelope, delimiter)
	if !ok {
		return "", fmt.Errorf("%w: missing delimiter", common.ErrDecrypt)
	}
	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrDecrypt, ivSize, len(iv))
	}

	data, err := hex.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecrypt, err)
	}

	out := make([]byte, len(data))
	cipher.NewCTR(c.block, []byte(iv)).XORKeyStream(out, data)

	return string(out), nil
}

// VerifyPassword reports whether candidate matches the secret sealed in
// envelope. Any decryption or comparison failure yields false.
func (c *Cipher) VerifyPassword(candidate, envelope string) bool {
	if len(candidate) > MaxPasswordBytes {
		return false
	}
	hash, err := c.Decrypt(envelope)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
