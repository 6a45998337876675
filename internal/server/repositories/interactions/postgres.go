package interactions

import (
	"context"
	"fmt"

	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, in *models.Interaction) (*models.Interaction, error) {
	metadata := []byte(in.Metadata)
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	query :=
		`INSERT INTO interactions (id, user_id, type, point_value, metadata)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, in.ID, in.UserID, string(in.Type), in.PointValue, metadata).
		Scan(&in.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return in, nil
}

func (r *PostgresRepository) SumPoints(ctx context.Context, userID string) (int64, error) {
	query :=
		`SELECT COALESCE(SUM(point_value), 0) FROM interactions
		 WHERE user_id = $1
		 `

	var total int64
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return total, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Interaction, error) {
	query :=
		`SELECT id, user_id, type, point_value, metadata, created_at FROM interactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Interaction, 0)
	for rows.Next() {
		var (
			in       models.Interaction
			kind     string
			metadata []byte
		)
		if err := rows.Scan(&in.ID, &in.UserID, &kind, &in.PointValue, &metadata, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		in.Type = models.InteractionType(kind)
		in.Metadata = metadata
		result = append(result, &in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}
