package services

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/matenet/backend/internal/cryptox"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/auth"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/objectstore"
	"github.com/matenet/backend/internal/server/repositories/memory"
	"github.com/matenet/backend/internal/siwe"
	"github.com/stretchr/testify/require"
)

const testDomain = "app.matenet.xyz"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock   *testClock
	store   *memory.Store
	objects *objectstore.MemoryStore
	ledger  *LedgerService
	users   *UserService
	auth    *AuthService
	friends *FriendService
}

func newTestEnv(t *testing.T, allowResend bool) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := memory.NewStore(clock.Now)
	cipher, err := cryptox.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	objects := objectstore.NewMemoryStore("http://cdn.test", "profile-pictures")
	logger := logging.Nop{}

	ledger := NewLedgerService(store, store, logger)
	users := NewUserService(store, store, ledger, cipher, objects, clock.Now, logger)
	issuer := auth.NewIssuer([]byte("test-secret"), 0, clock.Now)

	return &testEnv{
		clock:   clock,
		store:   store,
		objects: objects,
		ledger:  ledger,
		users:   users,
		auth:    NewAuthService(store.Nonces(nil), users, issuer, 0, testDomain, clock.Now, logger),
		friends: NewFriendService(store, store, users, ledger, allowResend, logger),
	}
}

func walletKey(b byte) *secp256k1.PrivateKey {
	raw := make([]byte, 32)
	raw[31] = b
	return secp256k1.PrivKeyFromBytes(raw)
}

func walletOf(key *secp256k1.PrivateKey) string {
	return siwe.PublicKeyToAddress(key.PubKey())
}

// signIn builds an EIP-4361 message for nonce and signs it with key.
func (e *testEnv) signIn(key *secp256k1.PrivateKey, nonce string) (message, signature string) {
	issued := e.clock.Now()
	exp := issued.Add(5 * time.Minute)
	m := &siwe.Message{
		Scheme:         "https",
		Domain:         testDomain,
		Address:        walletOf(key),
		Statement:      "Sign in to Matenet",
		URI:            "https://" + testDomain,
		Version:        "1",
		ChainID:        8453,
		Nonce:          nonce,
		IssuedAt:       issued,
		ExpirationTime: &exp,
	}
	message = m.String()

	compact := ecdsa.SignCompact(key, siwe.HashMessage([]byte(message)), false)
	sig := append(append([]byte{}, compact[1:]...), compact[0])
	return message, "0x" + hex.EncodeToString(sig)
}

// register signs a fresh user in through the wallet flow.
func (e *testEnv) register(t *testing.T, key *secp256k1.PrivateKey, referrerCode string) *models.User {
	t.Helper()
	ctx := context.Background()

	nonce, err := e.auth.IssueNonce(ctx)
	require.NoError(t, err)
	msg, sig := e.signIn(key, nonce)

	sess, err := e.auth.SiweVerify(ctx, msg, sig, referrerCode)
	require.NoError(t, err)
	return sess.User
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.ledger.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}
