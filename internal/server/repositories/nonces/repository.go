// Package nonces stores single-use sign-in challenges. Two backends exist:
// PostgreSQL and Redis.
package nonces

import (
	"context"
	"time"

	"github.com/matenet/backend/internal/server/models"
)

type Repository interface {
	Save(ctx context.Context, nonce *models.Nonce) error
	// Consume marks the nonce used. It returns common.ErrorNotFound when the
	// nonce is unknown, expired at now, or already consumed.
	Consume(ctx context.Context, value string, now time.Time) error
	// PurgeExpired deletes nonces that expired before the given instant.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
