package memory

import (
	"context"
	"time"

	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
)

type nonceRepo struct {
	s *Store
}

func (r *nonceRepo) Save(ctx context.Context, n *models.Nonce) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.nonces[n.Value]; ok {
		return common.ErrAlreadyExists
	}
	cp := *n
	r.s.data.nonces[n.Value] = &cp
	return nil
}

func (r *nonceRepo) Consume(ctx context.Context, value string, now time.Time) error {
	defer r.s.lock(ctx)()

	n, ok := r.s.data.nonces[value]
	if !ok || n.ConsumedAt != nil || !n.ExpiresAt.After(now) {
		return common.ErrorNotFound
	}
	consumed := now
	n.ConsumedAt = &consumed
	return nil
}

func (r *nonceRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var purged int64
	for k, n := range r.s.data.nonces {
		if !n.ExpiresAt.After(before) {
			delete(r.s.data.nonces, k)
			purged++
		}
	}
	return purged, nil
}
