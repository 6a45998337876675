// Package interactions persists the append-only points ledger.
package interactions

import (
	"context"

	"github.com/matenet/backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, interaction *models.Interaction) (*models.Interaction, error)
	SumPoints(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Interaction, error)
}
