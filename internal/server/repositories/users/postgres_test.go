package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "5f1c0f3e-8a57-4c35-9a41-0d1bde7e6a10"

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userColumns = []string{
	"user_id", "wallet_address", "nfc_id", "username", "email", "full_name", "bio",
	"profile_picture_url", "password", "referral_code", "socials", "nonce", "points",
	"created_at", "updated_at", "friends",
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^INSERT\s+INTO\s+users\s*\(user_id,\s*wallet_address,.*referral_code,\s*nonce,\s*points,\s*socials\)\s*VALUES\s*\(\$1,.*\$9\)\s*RETURNING\s+created_at,\s*updated_at\s*$`

	mock.ExpectQuery(q).
		WithArgs(testUserID, "0xabc", nil, nil, nil, "deadbeef", "nonce123", int64(0), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &models.User{ID: testUserID, WalletAddress: "0xabc", ReferralCode: "deadbeef", Nonce: "nonce123"}
	got, err := repo.Create(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, now, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_wallet_address_key"})

	_, err := repo.Create(context.Background(), &models.User{ID: testUserID, WalletAddress: "0xabc"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "users_wallet_address_key")
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{ID: testUserID})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetBy_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^SELECT\s+u\.user_id,.*FROM\s+users\s+u\s+WHERE\s+u\.wallet_address\s*=\s*\$1$`

	mock.ExpectQuery(q).
		WithArgs("0xabc").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			testUserID, "0xabc", nil, "alice", nil, "Alice", "", "",
			"cipher;iv", "deadbeef", []byte(`{"twitter":"@alice"}`), "n1", int64(25),
			now, now, "f1,f2",
		))

	got, err := repo.GetBy(context.Background(), models.LookupByWallet, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, testUserID, got.ID)
	assert.Equal(t, "alice", got.Username)
	assert.Empty(t, got.NfcID)
	assert.Equal(t, "cipher;iv", got.Password)
	assert.Equal(t, "@alice", got.Socials.Twitter)
	assert.Equal(t, int64(25), got.Points)
	assert.Equal(t, []string{"f1", "f2"}, got.Friends)
}

func TestGetBy_NoFriendsIsEmptySlice(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`WHERE\s+u\.referral_code\s*=\s*\$1$`).
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			testUserID, nil, nil, nil, nil, "", "", "", nil, "deadbeef", []byte(`{}`), "", int64(0), now, now, "",
		))

	got, err := repo.GetBy(context.Background(), models.LookupByReferralCode, "deadbeef")
	require.NoError(t, err)
	assert.NotNil(t, got.Friends)
	assert.Empty(t, got.Friends)
}

func TestGetBy_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`WHERE\s+u\.email\s*=\s*\$1$`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBy(context.Background(), models.LookupByEmail, "ghost@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetBy_ShortCircuits(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.GetBy(context.Background(), models.LookupByID, "not-a-uuid")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.GetBy(context.Background(), models.LookupByNfc, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.GetBy(context.Background(), models.LookupField("phone"), "1")
	assert.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+username\s*=\s*\$2,\s*email\s*=\s*\$3,\s*full_name\s*=\s*\$4,\s*bio\s*=\s*\$5,\s*socials\s*=\s*\$6`

	mock.ExpectExec(q).
		WithArgs(testUserID, "alice", nil, "Alice", "hi", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(testUserID, "bob", nil, "", "", sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	require.NoError(t, repo.Update(context.Background(), &models.User{ID: testUserID, Username: "alice", FullName: "Alice", Bio: "hi"}))

	err := repo.Update(context.Background(), &models.User{ID: testUserID, Username: "bob"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestSetNfcID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^UPDATE\s+users\s+SET\s+nfc_id\s*=\s*\$2`

	mock.ExpectExec(q).WithArgs(testUserID, "tag-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(testUserID, "tag-2").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_nfc_id_key"})
	mock.ExpectExec(q).WithArgs(testUserID, "tag-3").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.SetNfcID(context.Background(), testUserID, "tag-1"))
	assert.ErrorIs(t, repo.SetNfcID(context.Background(), testUserID, "tag-2"), common.ErrAlreadyExists)
	assert.ErrorIs(t, repo.SetNfcID(context.Background(), testUserID, "tag-3"), common.ErrorNotFound)
}

func TestSetters(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+password\s*=\s*\$2`).WithArgs(testUserID, "env;iv").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+nonce\s*=\s*\$2`).WithArgs(testUserID, "n2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+profile_picture_url\s*=\s*\$2`).WithArgs(testUserID, "http://x/y.png").WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	assert.NoError(t, repo.SetPassword(ctx, testUserID, "env;iv"))
	assert.NoError(t, repo.SetNonce(ctx, testUserID, "n2"))
	assert.NoError(t, repo.SetProfilePicture(ctx, testUserID, "http://x/y.png"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPoints(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+points\s*=\s*points\s*\+\s*\$2.*RETURNING\s+points\s*$`

	mock.ExpectQuery(q).WithArgs(testUserID, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(15)))
	mock.ExpectQuery(q).WithArgs(testUserID, int64(5)).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs(testUserID, int64(5)).WillReturnError(errors.New("db err"))

	balance, err := repo.AddPoints(context.Background(), testUserID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance)

	_, err = repo.AddPoints(context.Background(), testUserID, 5)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.AddPoints(context.Background(), testUserID, 5)
	assert.Regexp(t, `db error: .*db err`, err.Error())
}

func TestAddFriend(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+user_friends\s*\(user_id,\s*friend_id\).*ON\s+CONFLICT\s+DO\s+NOTHING\s*$`
	mock.ExpectExec(q).WithArgs("a", "b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("a", "b").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.AddFriend(context.Background(), "a", "b"))
	assert.NoError(t, repo.AddFriend(context.Background(), "a", "b"), "duplicate insert is a no-op")
}
