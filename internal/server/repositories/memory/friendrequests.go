package memory

import (
	"context"
	"fmt"

	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
)

type friendRequestRepo struct {
	s *Store
}

func (r *friendRequestRepo) Create(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	defer r.s.lock(ctx)()

	if req.Status == models.FriendRequestPending {
		for _, existing := range r.s.data.requests {
			if existing.Status == models.FriendRequestPending && existing.Involves(req.SenderID, req.ReceiverID) {
				return nil, fmt.Errorf("%w: pending friend request", common.ErrAlreadyExists)
			}
		}
	}

	now := r.s.clock.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	cp := *req
	r.s.data.requests = append(r.s.data.requests, &cp)
	return req, nil
}

func (r *friendRequestRepo) ListBetween(ctx context.Context, a, b string) ([]*models.FriendRequest, error) {
	defer r.s.lock(ctx)()

	result := make([]*models.FriendRequest, 0)
	for i := len(r.s.data.requests) - 1; i >= 0; i-- {
		if req := r.s.data.requests[i]; req.Involves(a, b) {
			cp := *req
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *friendRequestRepo) Transition(ctx context.Context, senderID, receiverID string, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	defer r.s.lock(ctx)()

	for _, req := range r.s.data.requests {
		if req.SenderID == senderID && req.ReceiverID == receiverID && req.Status == models.FriendRequestPending {
			req.Status = status
			req.UpdatedAt = r.s.clock.Now()
			cp := *req
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *friendRequestRepo) ListPendingForReceiver(ctx context.Context, receiverID string) ([]*models.FriendRequest, error) {
	defer r.s.lock(ctx)()

	result := make([]*models.FriendRequest, 0)
	for _, req := range r.s.data.requests {
		if req.ReceiverID == receiverID && req.Status == models.FriendRequestPending {
			cp := *req
			result = append(result, &cp)
		}
	}
	return result, nil
}
