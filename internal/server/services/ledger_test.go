package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_BalanceIsSumOfEntries(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	u := env.register(t, walletKey(1), "")

	kinds := []models.InteractionType{
		models.InteractionAddFriend, models.InteractionNFTRedeem,
		models.InteractionReferralBonus, models.InteractionSignup,
	}
	rnd := rand.New(rand.NewSource(7))
	want := int64(10)
	for i := 0; i < 50; i++ {
		v := rnd.Int63n(40) - 10
		_, err := env.ledger.RecordInteraction(ctx, u.ID, kinds[i%len(kinds)], v, nil)
		require.NoError(t, err)
		want += v

		assert.Equal(t, want, env.balance(t, u.ID))
	}

	history, err := env.ledger.History(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, history, 51)
	assert.Equal(t, models.InteractionSignup, history[len(history)-1].Type)
}

func TestLedger_Validation(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	u := env.register(t, walletKey(1), "")

	_, err := env.ledger.RecordInteraction(ctx, u.ID, "LIKE", 1, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = env.ledger.RecordInteraction(ctx, u.ID, models.InteractionAddFriend, 1, json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, common.ErrValidation)

	in, err := env.ledger.RecordInteraction(ctx, u.ID, models.InteractionNFTRedeem, 0, json.RawMessage(`{"token":"1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"1"}`, string(in.Metadata))

	_, err = env.ledger.GetBalance(ctx, "7b0f3d4c-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLedger_UnknownUserLeavesNoEntry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	ghost := "7b0f3d4c-0000-4000-8000-000000000000"

	_, err := env.ledger.RecordInteraction(ctx, ghost, models.InteractionAddFriend, 5, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	history, err := env.ledger.History(ctx, ghost)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedger_PostgresRollsBackWhenBalanceUpdateFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+interactions`).
		WithArgs(sqlmock.AnyArg(), "u1", "ADD_FRIEND", int64(5), []byte("{}")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`UPDATE\s+users\s+SET\s+points\s*=\s*points\s*\+\s*\$2`).
		WithArgs("u1", int64(5)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	ledger := NewLedgerService(dbx.NewSQLTransactor(db, nil), repomanager.NewPostgresRepositoryManager(), logging.Nop{})
	_, err = ledger.RecordInteraction(context.Background(), "u1", models.InteractionAddFriend, 5, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_PostgresCommitsBothWrites(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+interactions`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(`UPDATE\s+users\s+SET\s+points`).
		WithArgs("u1", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(10)))
	mock.ExpectCommit()

	ledger := NewLedgerService(dbx.NewSQLTransactor(db, nil), repomanager.NewPostgresRepositoryManager(), logging.Nop{})
	in, err := ledger.RecordInteraction(context.Background(), "u1", models.InteractionSignup, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), in.PointValue)

	require.NoError(t, mock.ExpectationsWereMet())
}
