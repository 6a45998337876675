package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
)

// FriendService drives the friend-request state machine:
// PENDING -> ACCEPTED | REJECTED.
type FriendService struct {
	tx                     dbx.Transactor
	repomanager            repomanager.RepositoryManager
	users                  *UserService
	ledger                 *LedgerService
	allowResendAfterReject bool
	logger                 logging.Logger
}

func NewFriendService(tx dbx.Transactor, m repomanager.RepositoryManager, users *UserService, ledger *LedgerService,
	allowResendAfterReject bool, logger logging.Logger) *FriendService {
	return &FriendService{
		tx:                     tx,
		repomanager:            m,
		users:                  users,
		ledger:                 ledger,
		allowResendAfterReject: allowResendAfterReject,
		logger:                 logger.With("module", "friends"),
	}
}

// ResolveTarget finds the receiver by referral code, then NFC id, then
// wallet address. A selector that matches nobody falls through to the next.
func (s *FriendService) ResolveTarget(ctx context.Context, sel models.TargetSelector) (*models.User, error) {
	if sel.Empty() {
		return nil, fmt.Errorf("%w: one of referrerCode, nfcId or walletAddress is required", common.ErrValidation)
	}

	lookups := []struct {
		value string
		find  func(context.Context, string) (*models.User, error)
	}{
		{sel.ReferralCode, s.users.FindByReferralCode},
		{sel.NfcID, s.users.FindByNfc},
		{sel.WalletAddress, s.users.FindByWallet},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		user, err := l.find(ctx, l.value)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: user", common.ErrorNotFound)
}

// SendRequest opens a PENDING request from senderID to the resolved target.
func (s *FriendService) SendRequest(ctx context.Context, senderID string, sel models.TargetSelector,
	method models.FriendRequestMethod) (*models.FriendRequest, error) {

	if method == "" {
		method = models.MethodLink
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", common.ErrValidation, method)
	}

	receiver, err := s.ResolveTarget(ctx, sel)
	if err != nil {
		return nil, err
	}
	if receiver.ID == senderID {
		return nil, common.ErrSelfRequest
	}

	req := &models.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiver.ID,
		Status:     models.FriendRequestPending,
		Method:     method,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sender, err := s.repomanager.Users(tx).GetBy(ctx, models.LookupByID, senderID)
		if err != nil {
			return err
		}
		if sender.HasFriend(receiver.ID) {
			return fmt.Errorf("%w: already friends", common.ErrAlreadyExists)
		}

		requests := s.repomanager.FriendRequests(tx)
		history, err := requests.ListBetween(ctx, senderID, receiver.ID)
		if err != nil {
			return err
		}
		if err := s.checkHistory(history); err != nil {
			return err
		}

		_, err = requests.Create(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "friend request sent", "sender", senderID, "receiver", receiver.ID, "method", method)
	return req, nil
}

// checkHistory rejects a new request when the pair already has a pending or
// accepted request, or a rejected one while resending is disabled.
func (s *FriendService) checkHistory(history []*models.FriendRequest) error {
	for _, r := range history {
		switch r.Status {
		case models.FriendRequestPending:
			return fmt.Errorf("%w: a pending friend request already exists", common.ErrAlreadyExists)
		case models.FriendRequestAccepted:
			return fmt.Errorf("%w: already friends", common.ErrAlreadyExists)
		case models.FriendRequestRejected:
			if !s.allowResendAfterReject {
				return fmt.Errorf("%w: friend request was rejected", common.ErrAlreadyExists)
			}
		}
	}
	return nil
}

// AcceptRequest accepts the PENDING request senderID -> receiverID, credits
// ADD_FRIEND to both users and links them as friends, all in one
// transaction. A request that is not PENDING yields common.ErrorNotFound.
func (s *FriendService) AcceptRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	var accepted *models.FriendRequest

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		accepted, err = s.repomanager.FriendRequests(tx).Transition(ctx, senderID, receiverID, models.FriendRequestAccepted)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("%w: friend request", common.ErrorNotFound)
			}
			return err
		}

		meta := map[string]string{"friendRequestId": accepted.ID}
		for _, id := range []string{senderID, receiverID} {
			if err := s.ledger.award(ctx, tx, id, models.InteractionAddFriend, meta); err != nil {
				return err
			}
		}

		users := s.repomanager.Users(tx)
		if err := users.AddFriend(ctx, senderID, receiverID); err != nil {
			return err
		}
		return users.AddFriend(ctx, receiverID, senderID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "friend request accepted", "sender", senderID, "receiver", receiverID)
	return accepted, nil
}

// RejectRequest moves the PENDING request senderID -> receiverID to
// REJECTED. No points are awarded.
func (s *FriendService) RejectRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	req, err := s.repomanager.FriendRequests(s.tx.Conn()).Transition(ctx, senderID, receiverID, models.FriendRequestRejected)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: friend request", common.ErrorNotFound)
		}
		return nil, err
	}

	s.logger.Info(ctx, "friend request rejected", "sender", senderID, "receiver", receiverID)
	return req, nil
}

// ListPendingRequests returns requests awaiting userID's answer, oldest
// first.
func (s *FriendService) ListPendingRequests(ctx context.Context, userID string) ([]*models.FriendRequest, error) {
	return s.repomanager.FriendRequests(s.tx.Conn()).ListPendingForReceiver(ctx, userID)
}
