package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var lookupColumns = map[models.LookupField]string{
	models.LookupByID:           "user_id",
	models.LookupByWallet:       "wallet_address",
	models.LookupByEmail:        "email",
	models.LookupByUsername:     "username",
	models.LookupByNfc:          "nfc_id",
	models.LookupByReferralCode: "referral_code",
}

const selectUser = `SELECT u.user_id, u.wallet_address, u.nfc_id, u.username, u.email, u.full_name, u.bio,
        u.profile_picture_url, u.password, u.referral_code, u.socials, u.nonce, u.points,
        u.created_at, u.updated_at,
        COALESCE((SELECT string_agg(f.friend_id::text, ',' ORDER BY f.created_at)
                  FROM user_friends f WHERE f.user_id = u.user_id), '')
   FROM users u`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// wrapWriteErr maps unique violations to common.ErrAlreadyExists.
func wrapWriteErr(err error) error {
	if dbx.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, dbx.UniqueConstraint(err))
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	socials, err := json.Marshal(user.Socials)
	if err != nil {
		return nil, err
	}

	query :=
		`INSERT INTO users (user_id, wallet_address, nfc_id, username, email, referral_code, nonce, points, socials)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING created_at, updated_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		user.ID, nullString(user.WalletAddress), nullString(user.NfcID), nullString(user.Username),
		nullString(user.Email), user.ReferralCode, user.Nonce, user.Points, socials,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, wrapWriteErr(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetBy(ctx context.Context, field models.LookupField, value string) (*models.User, error) {
	column, ok := lookupColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown lookup field %q", common.ErrValidation, field)
	}
	if value == "" {
		return nil, common.ErrorNotFound
	}
	if field == models.LookupByID {
		if _, err := uuid.Parse(value); err != nil {
			return nil, common.ErrorNotFound
		}
	}

	query := selectUser + "\n  WHERE u." + column + " = $1"

	var (
		user                                 models.User
		wallet, nfc, username, email, passwd sql.NullString
		socials                              []byte
		friends                              string
	)
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&user.ID, &wallet, &nfc, &username, &email, &user.FullName, &user.Bio,
		&user.ProfilePictureURL, &passwd, &user.ReferralCode, &socials, &user.Nonce, &user.Points,
		&user.CreatedAt, &user.UpdatedAt, &friends,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	user.WalletAddress = wallet.String
	user.NfcID = nfc.String
	user.Username = username.String
	user.Email = email.String
	user.Password = passwd.String
	user.Friends = []string{}
	if friends != "" {
		user.Friends = strings.Split(friends, ",")
	}
	if len(socials) > 0 {
		if err := json.Unmarshal(socials, &user.Socials); err != nil {
			return nil, fmt.Errorf("decode socials: %w", err)
		}
	}

	return &user, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapWriteErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) error {
	socials, err := json.Marshal(user.Socials)
	if err != nil {
		return err
	}

	query :=
		`UPDATE users SET username = $2, email = $3, full_name = $4, bio = $5, socials = $6, updated_at = now()
		 WHERE user_id = $1
		 `

	return r.exec(ctx, query, user.ID, nullString(user.Username), nullString(user.Email), user.FullName, user.Bio, socials)
}

func (r *PostgresRepository) SetPassword(ctx context.Context, userID, envelope string) error {
	return r.exec(ctx, `UPDATE users SET password = $2, updated_at = now() WHERE user_id = $1`, userID, envelope)
}

func (r *PostgresRepository) SetNonce(ctx context.Context, userID, nonce string) error {
	return r.exec(ctx, `UPDATE users SET nonce = $2, updated_at = now() WHERE user_id = $1`, userID, nonce)
}

func (r *PostgresRepository) SetNfcID(ctx context.Context, userID, nfcID string) error {
	return r.exec(ctx, `UPDATE users SET nfc_id = $2, updated_at = now() WHERE user_id = $1`, userID, nfcID)
}

func (r *PostgresRepository) SetProfilePicture(ctx context.Context, userID, url string) error {
	return r.exec(ctx, `UPDATE users SET profile_picture_url = $2, updated_at = now() WHERE user_id = $1`, userID, url)
}

func (r *PostgresRepository) AddPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	query :=
		`UPDATE users SET points = points + $2, updated_at = now()
		 WHERE user_id = $1
		 RETURNING points
		 `

	var balance int64
	err := r.db.QueryRowContext(ctx, query, userID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

func (r *PostgresRepository) AddFriend(ctx context.Context, userID, friendID string) error {
	query :=
		`INSERT INTO user_friends (user_id, friend_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
