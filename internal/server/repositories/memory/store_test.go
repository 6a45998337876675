package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ dbx.Transactor                = (*Store)(nil)
	_ repomanager.RepositoryManager = (*Store)(nil)
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newUser(wallet, code string) *models.User {
	return &models.User{ID: uuid.NewString(), WalletAddress: wallet, ReferralCode: code}
}

func TestUsers_CreateAndLookup(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.Users(nil)

	u, err := repo.Create(ctx, newUser("0xabc", "aaaa1111"))
	require.NoError(t, err)
	assert.Equal(t, fixedClock(), u.CreatedAt)

	got, err := repo.GetBy(ctx, models.LookupByWallet, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.Friends)

	got, err = repo.GetBy(ctx, models.LookupByReferralCode, "aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetBy(ctx, models.LookupByID, "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = repo.GetBy(ctx, models.LookupByEmail, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = repo.GetBy(ctx, models.LookupField("phone"), "1")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUsers_Uniqueness(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.Users(nil)

	a, err := repo.Create(ctx, newUser("0xa", "code000a"))
	require.NoError(t, err)
	b, err := repo.Create(ctx, newUser("0xb", "code000b"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newUser("0xa", "code000c"))
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	require.NoError(t, repo.SetNfcID(ctx, a.ID, "tag-1"))
	err = repo.SetNfcID(ctx, b.ID, "tag-1")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "users_nfc_id_key")

	got, err := repo.GetBy(ctx, models.LookupByID, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.NfcID, "failed write must not stick")

	assert.ErrorIs(t, repo.SetPassword(ctx, uuid.NewString(), "x"), common.ErrorNotFound)
}

func TestUsers_PointsAndFriends(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.Users(nil)

	a, _ := repo.Create(ctx, newUser("0xa", "code000a"))
	b, _ := repo.Create(ctx, newUser("0xb", "code000b"))

	bal, err := repo.AddPoints(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
	bal, err = repo.AddPoints(ctx, a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal)

	require.NoError(t, repo.AddFriend(ctx, a.ID, b.ID))
	require.NoError(t, repo.AddFriend(ctx, a.ID, b.ID))

	got, _ := repo.GetBy(ctx, models.LookupByID, a.ID)
	assert.Equal(t, []string{b.ID}, got.Friends)
	assert.ErrorIs(t, repo.AddFriend(ctx, a.ID, uuid.NewString()), common.ErrorNotFound)
}

func TestFriendRequests_OnePendingPerPair(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.FriendRequests(nil)

	_, err := repo.Create(ctx, &models.FriendRequest{ID: "1", SenderID: "a", ReceiverID: "b", Status: models.FriendRequestPending, Method: models.MethodQR})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.FriendRequest{ID: "2", SenderID: "b", ReceiverID: "a", Status: models.FriendRequestPending, Method: models.MethodQR})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = repo.Transition(ctx, "b", "a", models.FriendRequestAccepted)
	assert.ErrorIs(t, err, common.ErrorNotFound, "direction matters")

	req, err := repo.Transition(ctx, "a", "b", models.FriendRequestRejected)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestRejected, req.Status)

	_, err = repo.Transition(ctx, "a", "b", models.FriendRequestAccepted)
	assert.ErrorIs(t, err, common.ErrorNotFound, "terminal states are final")

	_, err = repo.Create(ctx, &models.FriendRequest{ID: "3", SenderID: "b", ReceiverID: "a", Status: models.FriendRequestPending, Method: models.MethodNFC})
	require.NoError(t, err)

	all, err := repo.ListBetween(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "3", all[0].ID)

	pending, err := repo.ListPendingForReceiver(ctx, "a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].SenderID)
}

func TestInteractions_SumAndList(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.Interactions(nil)

	for i, v := range []int64{10, 5, 5} {
		_, err := repo.Create(ctx, &models.Interaction{ID: string(rune('a' + i)), UserID: "u", Type: models.InteractionAddFriend, PointValue: v})
		require.NoError(t, err)
	}
	_, _ = repo.Create(ctx, &models.Interaction{ID: "z", UserID: "other", PointValue: 100})

	sum, err := repo.SumPoints(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(20), sum)

	list, err := repo.ListByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.JSONEq(t, `{}`, string(list[0].Metadata))
}

func TestNonces_ConsumeOnceAndPurge(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	repo := s.Nonces(nil)
	now := fixedClock()

	require.NoError(t, repo.Save(ctx, &models.Nonce{Value: "n1", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, repo.Save(ctx, &models.Nonce{Value: "n2", IssuedAt: now, ExpiresAt: now.Add(time.Minute)}))
	assert.ErrorIs(t, repo.Save(ctx, &models.Nonce{Value: "n1"}), common.ErrAlreadyExists)

	require.NoError(t, repo.Consume(ctx, "n1", now))
	assert.ErrorIs(t, repo.Consume(ctx, "n1", now), common.ErrorNotFound)
	assert.ErrorIs(t, repo.Consume(ctx, "n2", now.Add(time.Minute)), common.ErrorNotFound, "expired")
	assert.ErrorIs(t, repo.Consume(ctx, "nope", now), common.ErrorNotFound)

	n, err := repo.PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestWithinTx_RollbackRestoresState(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	u, _ := s.Users(nil).Create(ctx, newUser("0xa", "code000a"))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.Users(tx).AddPoints(ctx, u.ID, 5); err != nil {
			return err
		}
		if _, err := s.Interactions(tx).Create(ctx, &models.Interaction{ID: "i", UserID: u.ID, PointValue: 5}); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return s.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Users(nil).GetBy(ctx, models.LookupByID, u.ID)
	assert.Zero(t, got.Points)
	sum, _ := s.Interactions(nil).SumPoints(ctx, u.ID)
	assert.Zero(t, sum)
}

func TestWithinTx_PanicRestoresAndRethrows(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	u, _ := s.Users(nil).Create(ctx, newUser("0xa", "code000a"))

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			_, _ = s.Users(tx).AddPoints(ctx, u.ID, 5)
			panic("kaboom")
		})
	})

	got, _ := s.Users(nil).GetBy(ctx, models.LookupByID, u.ID)
	assert.Zero(t, got.Points)
}

func TestWithinTx_ConcurrentTransitionsAreExclusive(t *testing.T) {
	s := NewStore(fixedClock)
	ctx := context.Background()
	_, err := s.FriendRequests(nil).Create(ctx, &models.FriendRequest{ID: "1", SenderID: "a", ReceiverID: "b", Status: models.FriendRequestPending})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
				_, err := s.FriendRequests(tx).Transition(ctx, "a", "b", models.FriendRequestAccepted)
				return err
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
