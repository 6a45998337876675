// Package friendrequests persists friend requests and their status
// transitions.
package friendrequests

import (
	"context"

	"github.com/matenet/backend/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error)
	// ListBetween returns every request between a and b in either direction,
	// newest first.
	ListBetween(ctx context.Context, a, b string) ([]*models.FriendRequest, error)
	// Transition moves the request sender → receiver from PENDING to status.
	// It returns common.ErrorNotFound when no PENDING request exists.
	Transition(ctx context.Context, senderID, receiverID string, status models.FriendRequestStatus) (*models.FriendRequest, error)
	ListPendingForReceiver(ctx context.Context, receiverID string) ([]*models.FriendRequest, error)
}
