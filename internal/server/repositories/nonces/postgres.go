package nonces

import (
	"context"
	"fmt"
	"time"

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

func (r *PostgresRepository) Save(ctx context.Context, n *models.Nonce) error {
	query :=
		`INSERT INTO nonces (nonce, issued_at, expires_at)
         VALUES ($1, $2, $3)
		 `

	if _, err := r.db.ExecContext(ctx, query, n.Value, n.IssuedAt, n.ExpiresAt); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, value string, now time.Time) error {
	query :=
		`UPDATE nonces SET consumed_at = $2
		 WHERE nonce = $1 AND consumed_at IS NULL AND expires_at > $2
		 `

	res, err := r.db.ExecContext(ctx, query, value, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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

func (r *PostgresRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM nonces WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
