// Package services contains server-side business logic: identity and
// credentials, wallet sign-in, the points ledger and friend requests.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
)

// LedgerService appends points ledger entries and keeps the cached balance
// on the user record in step with them.
type LedgerService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewLedgerService(tx dbx.Transactor, m repomanager.RepositoryManager, logger logging.Logger) *LedgerService {
	return &LedgerService{tx: tx, repomanager: m, logger: logger.With("module", "ledger")}
}

// RecordInteraction appends an entry and bumps the cached balance in one
// transaction.
func (s *LedgerService) RecordInteraction(ctx context.Context, userID string, kind models.InteractionType,
	pointValue int64, metadata json.RawMessage) (*models.Interaction, error) {

	var in *models.Interaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		in, err = s.RecordInteractionTx(ctx, tx, userID, kind, pointValue, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// RecordInteractionTx is RecordInteraction inside the caller's transaction.
func (s *LedgerService) RecordInteractionTx(ctx context.Context, tx dbx.DBTX, userID string,
	kind models.InteractionType, pointValue int64, metadata json.RawMessage) (*models.Interaction, error) {

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown interaction type %q", common.ErrValidation, kind)
	}
	if len(metadata) > 0 && !json.Valid(metadata) {
		return nil, fmt.Errorf("%w: metadata is not valid JSON", common.ErrValidation)
	}

	in, err := s.repomanager.Interactions(tx).Create(ctx, &models.Interaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       kind,
		PointValue: pointValue,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("error appending interaction: %w", err)
	}

	balance, err := s.repomanager.Users(tx).AddPoints(ctx, userID, pointValue)
	if err != nil {
		return nil, fmt.Errorf("error updating balance: %w", err)
	}

	s.logger.Debug(ctx, "interaction recorded", "user_id", userID, "type", kind, "points", pointValue, "balance", balance)
	return in, nil
}

// award records kind at its standard point value.
func (s *LedgerService) award(ctx context.Context, tx dbx.DBTX, userID string, kind models.InteractionType, metadata any) error {
	var raw json.RawMessage
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = b
	}
	_, err := s.RecordInteractionTx(ctx, tx, userID, kind, models.PointValues[kind], raw)
	return err
}

// GetBalance returns the sum of the user's ledger entries.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	if _, err := s.repomanager.Users(s.tx.Conn()).GetBy(ctx, models.LookupByID, userID); err != nil {
		return 0, err
	}
	return s.repomanager.Interactions(s.tx.Conn()).SumPoints(ctx, userID)
}

// History returns the user's ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID string) ([]*models.Interaction, error) {
	return s.repomanager.Interactions(s.tx.Conn()).ListByUser(ctx, userID)
}
