package friendrequests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const columns = `id, sender_id, receiver_id, status, method, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*models.FriendRequest, error) {
	var (
		req            models.FriendRequest
		status, method string
	)
	if err := s.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &status, &method, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = models.FriendRequestStatus(status)
	req.Method = models.FriendRequestMethod(method)
	return &req, nil
}

func (r *PostgresRepository) Create(ctx context.Context, req *models.FriendRequest) (*models.FriendRequest, error) {
	query :=
		`INSERT INTO friend_requests (id, sender_id, receiver_id, status, method)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, req.ID, req.SenderID, req.ReceiverID, string(req.Status), string(req.Method)).
		Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: pending friend request", common.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return req, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.FriendRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// validIDs reports whether every id parses as a UUID; others cannot match
// a row and would fail the column cast.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (r *PostgresRepository) ListBetween(ctx context.Context, a, b string) ([]*models.FriendRequest, error) {
	if !validIDs(a, b) {
		return make([]*models.FriendRequest, 0), nil
	}
	query := `SELECT ` + columns + ` FROM friend_requests
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at DESC
		 `
	return r.list(ctx, query, a, b)
}

func (r *PostgresRepository) Transition(ctx context.Context, senderID, receiverID string, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	if !validIDs(senderID, receiverID) {
		return nil, common.ErrorNotFound
	}
	query := `UPDATE friend_requests SET status = $3, updated_at = now()
		 WHERE sender_id = $1 AND receiver_id = $2 AND status = 'PENDING'
		 RETURNING ` + columns

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, senderID, receiverID, string(status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return req, nil
}

func (r *PostgresRepository) ListPendingForReceiver(ctx context.Context, receiverID string) ([]*models.FriendRequest, error) {
	query := `SELECT ` + columns + ` FROM friend_requests
		 WHERE receiver_id = $1 AND status = 'PENDING'
		 ORDER BY created_at ASC
		 `
	return r.list(ctx, query, receiverID)
}
