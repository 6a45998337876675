package siwe

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/matenet/backend/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issued = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testKey(t *testing.T, b byte) *secp256k1.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	raw[31] = b
	return secp256k1.PrivKeyFromBytes(raw)
}

// personalSign returns r || s || v with v in {27, 28}.
func personalSign(key *secp256k1.PrivateKey, msg string) string {
	compact := ecdsa.SignCompact(key, HashMessage([]byte(msg)), false)
	sig := append(append([]byte{}, compact[1:]...), compact[0])
	return "0x" + hex.EncodeToString(sig)
}

func testMessage(address string) *Message {
	exp := issued.Add(10 * time.Minute)
	return &Message{
		Scheme:         "https",
		Domain:         "app.matenet.xyz",
		Address:        address,
		Statement:      "Sign in to Matenet",
		URI:            "https://app.matenet.xyz",
		Version:        "1",
		ChainID:        8453,
		Nonce:          "k2Jd9sQ1xYzA",
		IssuedAt:       issued,
		ExpirationTime: &exp,
		Resources:      []string{"https://app.matenet.xyz/terms"},
	}
}

func TestPublicKeyToAddress_KnownKey(t *testing.T) {
	key := testKey(t, 1)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", PublicKeyToAddress(key.PubKey()))
}

func TestChecksumAddress(t *testing.T) {
	for _, want := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	} {
		assert.Equal(t, want, ChecksumAddress(strings.ToLower(want)))
	}
}

func TestParseMessage_RoundTrip(t *testing.T) {
	m := testMessage("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")

	parsed, err := ParseMessage(m.String())
	require.NoError(t, err)

	assert.Equal(t, m.Scheme, parsed.Scheme)
	assert.Equal(t, m.Domain, parsed.Domain)
	assert.Equal(t, m.Address, parsed.Address)
	assert.Equal(t, m.Statement, parsed.Statement)
	assert.Equal(t, m.URI, parsed.URI)
	assert.Equal(t, int64(8453), parsed.ChainID)
	assert.Equal(t, m.Nonce, parsed.Nonce)
	assert.True(t, m.IssuedAt.Equal(parsed.IssuedAt))
	require.NotNil(t, parsed.ExpirationTime)
	assert.True(t, m.ExpirationTime.Equal(*parsed.ExpirationTime))
	assert.Equal(t, m.Resources, parsed.Resources)
}

func TestParseMessage_WithoutStatement(t *testing.T) {
	m := testMessage("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	m.Statement = ""
	m.Scheme = ""

	parsed, err := ParseMessage(m.String())
	require.NoError(t, err)
	assert.Empty(t, parsed.Statement)
	assert.Equal(t, "app.matenet.xyz", parsed.Domain)
}

func TestParseMessage_Invalid(t *testing.T) {
	good := testMessage("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf").String()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "no preamble", raw: strings.Replace(good, "wants you to sign in", "asks you to log in", 1)},
		{name: "bad address", raw: strings.Replace(good, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", "0x1234", 1)},
		{name: "missing nonce", raw: strings.Replace(good, "Nonce: k2Jd9sQ1xYzA\n", "", 1)},
		{name: "short nonce", raw: strings.Replace(good, "k2Jd9sQ1xYzA", "abc", 1)},
		{name: "wrong version", raw: strings.Replace(good, "Version: 1", "Version: 2", 1)},
		{name: "unknown field", raw: good + "\nColor: blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(tt.raw)
			assert.True(t, errors.Is(err, common.ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestVerify_Success(t *testing.T) {
	key := testKey(t, 7)
	addr := PublicKeyToAddress(key.PubKey())
	raw := testMessage(addr).String()

	m, err := Verify(raw, personalSign(key, raw), VerifyOptions{Domain: "app.matenet.xyz", Now: issued.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, addr, m.Address)
	assert.Equal(t, "k2Jd9sQ1xYzA", m.Nonce)
}

func TestVerify_LowercaseAddressAndZeroOneV(t *testing.T) {
	key := testKey(t, 9)
	addr := PublicKeyToAddress(key.PubKey())
	raw := testMessage(strings.ToLower(addr)).String()

	sig, err := DecodeSignature(personalSign(key, raw))
	require.NoError(t, err)
	sig[64] -= 27

	m, err := Verify(raw, hex.EncodeToString(sig), VerifyOptions{Now: issued})
	require.NoError(t, err)
	assert.Equal(t, addr, m.Address)
}

func TestVerify_Failures(t *testing.T) {
	key := testKey(t, 7)
	other := testKey(t, 8)
	addr := PublicKeyToAddress(key.PubKey())
	raw := testMessage(addr).String()
	sig := personalSign(key, raw)

	tampered := strings.Replace(raw, "k2Jd9sQ1xYzA", "k2Jd9sQ1xYzB", 1)

	tests := []struct {
		name string
		raw  string
		sig  string
		opts VerifyOptions
	}{
		{name: "tampered message", raw: tampered, sig: sig, opts: VerifyOptions{Now: issued}},
		{name: "other signer", raw: raw, sig: personalSign(other, raw), opts: VerifyOptions{Now: issued}},
		{name: "expired", raw: raw, sig: sig, opts: VerifyOptions{Now: issued.Add(time.Hour)}},
		{name: "wrong domain", raw: raw, sig: sig, opts: VerifyOptions{Domain: "evil.example", Now: issued}},
		{name: "short signature", raw: raw, sig: "0xdeadbeef", opts: VerifyOptions{Now: issued}},
		{name: "not hex", raw: raw, sig: "0xzz", opts: VerifyOptions{Now: issued}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.raw, tt.sig, tt.opts)
			assert.True(t, errors.Is(err, common.ErrInvalidSignature), "got %v", err)
		})
	}
}

func TestVerify_NotBefore(t *testing.T) {
	key := testKey(t, 3)
	m := testMessage(PublicKeyToAddress(key.PubKey()))
	nb := issued.Add(5 * time.Minute)
	m.NotBefore = &nb
	raw := m.String()

	_, err := Verify(raw, personalSign(key, raw), VerifyOptions{Now: issued})
	assert.ErrorIs(t, err, common.ErrInvalidSignature)

	_, err = Verify(raw, personalSign(key, raw), VerifyOptions{Now: nb})
	assert.NoError(t, err)
}

func TestNormalizeAddress_BadChecksum(t *testing.T) {
	_, err := NormalizeAddress("0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	assert.ErrorIs(t, err, common.ErrInvalidSignature)
}
