package memory

import (
	"context"
	"encoding/json"

	"github.com/matenet/backend/internal/server/models"
)

type interactionRepo struct {
	s *Store
}

func (r *interactionRepo) Create(ctx context.Context, in *models.Interaction) (*models.Interaction, error) {
	defer r.s.lock(ctx)()

	if len(in.Metadata) == 0 {
		in.Metadata = json.RawMessage("{}")
	}
	in.CreatedAt = r.s.clock.Now()
	cp := *in
	r.s.data.interactions = append(r.s.data.interactions, &cp)
	return in, nil
}

func (r *interactionRepo) SumPoints(ctx context.Context, userID string) (int64, error) {
	defer r.s.lock(ctx)()

	var total int64
	for _, in := range r.s.data.interactions {
		if in.UserID == userID {
			total += in.PointValue
		}
	}
	return total, nil
}

func (r *interactionRepo) ListByUser(ctx context.Context, userID string) ([]*models.Interaction, error) {
	defer r.s.lock(ctx)()

	result := make([]*models.Interaction, 0)
	for i := len(r.s.data.interactions) - 1; i >= 0; i-- {
		if in := r.s.data.interactions[i]; in.UserID == userID {
			cp := *in
			result = append(result, &cp)
		}
	}
	return result, nil
}
