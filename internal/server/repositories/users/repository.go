// Package users persists identity records.
package users

import (
	"context"

	"github.com/matenet/backend/internal/server/models"
)

// Repository is the credential store. Lookups return common.ErrorNotFound
// for missing users; writes violating a uniqueness rule return
// common.ErrAlreadyExists.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetBy(ctx context.Context, field models.LookupField, value string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	SetPassword(ctx context.Context, userID, envelope string) error
	SetNonce(ctx context.Context, userID, nonce string) error
	SetNfcID(ctx context.Context, userID, nfcID string) error
	SetProfilePicture(ctx context.Context, userID, url string) error
	AddPoints(ctx context.Context, userID string, delta int64) (int64, error)
	AddFriend(ctx context.Context, userID, friendID string) error
}
