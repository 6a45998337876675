package siwe

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

const signatureLength = 65

// VerifyOptions constrain Verify. Zero values skip the corresponding check.
type VerifyOptions struct {
	Domain string
	Now    time.Time
}

// Verify parses raw, checks its time bounds and domain, recovers the signer
// of the EIP-191 signature and requires it to match the message address.
// The returned message carries the checksummed address.
func Verify(raw, signature string, opts VerifyOptions) (*Message, error) {
	m, err := ParseMessage(raw)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	if err := m.ValidAt(now); err != nil {
		return nil, err
	}
	if opts.Domain != "" && m.Domain != opts.Domain {
		return nil, invalid("domain %q does not match %q", m.Domain, opts.Domain)
	}

	claimed, err := NormalizeAddress(m.Address)
	if err != nil {
		return nil, err
	}

	sig, err := DecodeSignature(signature)
	if err != nil {
		return nil, err
	}

	signer, err := RecoverAddress([]byte(raw), sig)
	if err != nil {
		return nil, err
	}
	if signer != claimed {
		return nil, invalid("signer %s does not match %s", signer, claimed)
	}

	m.Address = claimed
	return m, nil
}

// DecodeSignature decodes a 0x-prefixed hex signature of 65 bytes.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, invalid("signature is not hex")
	}
	if len(sig) != signatureLength {
		return nil, invalid("signature must be %d bytes, got %d", signatureLength, len(sig))
	}
	return sig, nil
}

// HashMessage returns the EIP-191 personal_sign digest of msg.
func HashMessage(msg []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(msg))))
	h.Write(msg)
	return h.Sum(nil)
}

// RecoverAddress returns the checksummed address that produced sig over the
// EIP-191 digest of msg. sig is r || s || v with v in {0, 1, 27, 28}.
func RecoverAddress(msg, sig []byte) (string, error) {
	if len(sig) != signatureLength {
		return "", invalid("signature must be %d bytes", signatureLength)
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", invalid("bad recovery id %d", sig[64])
	}

	compact := make([]byte, signatureLength)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, HashMessage(msg))
	if err != nil {
		return "", invalid("recover: %v", err)
	}

	return PublicKeyToAddress(pub), nil
}

// PublicKeyToAddress derives the checksummed Ethereum address of pub.
func PublicKeyToAddress(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	return ChecksumAddress("0x" + hex.EncodeToString(h.Sum(nil)[12:]))
}

// ChecksumAddress renders addr in EIP-55 mixed case.
func ChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(addr, "0x"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}

// NormalizeAddress accepts all-lower, all-upper or correctly checksummed
// addresses and returns the checksummed form.
func NormalizeAddress(addr string) (string, error) {
	if !addressPattern.MatchString(addr) {
		return "", invalid("malformed address %q", addr)
	}
	body := addr[2:]
	sum := ChecksumAddress(addr)
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && addr != sum {
		return "", invalid("address %q fails checksum", addr)
	}
	return sum, nil
}

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}
