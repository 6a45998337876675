package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/cryptox"
	"github.com/matenet/backend/internal/dbx"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/objectstore"
	"github.com/matenet/backend/internal/server/repositories/repomanager"
	"github.com/matenet/backend/internal/siwe"
	"github.com/matenet/backend/internal/timex"
)

// MaxProfilePictureSize is the upload limit for profile pictures.
const MaxProfilePictureSize = 2 << 20

var pictureExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true}

// UserService owns identity records: creation by wallet, credentials,
// profile updates, NFC tags, profile pictures and lookups.
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	ledger      *LedgerService
	cipher      *cryptox.Cipher
	objects     objectstore.Store
	clock       timex.Clock
	logger      logging.Logger
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, ledger *LedgerService,
	cipher *cryptox.Cipher, objects objectstore.Store, clock timex.Clock, logger logging.Logger) *UserService {
	return &UserService{
		tx:          tx,
		repomanager: m,
		ledger:      ledger,
		cipher:      cipher,
		objects:     objects,
		clock:       clock,
		logger:      logger.With("module", "users"),
	}
}

func normalizeWallet(address string) (string, error) {
	w, err := siwe.NormalizeAddress(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("%w: invalid wallet address", common.ErrValidation)
	}
	return w, nil
}

// newReferralCode returns 8 lowercase hex characters taken from a uuid.
func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// FindOrCreateByWallet returns the user owning address, recording nonce as
// the last login nonce, or registers a new user.
func (s *UserService) FindOrCreateByWallet(ctx context.Context, address, nonce, referrerCode string) (*models.User, error) {
	wallet, err := normalizeWallet(address)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.tx.Conn())
	user, err := repo.GetBy(ctx, models.LookupByWallet, wallet)
	if err == nil {
		if err := repo.SetNonce(ctx, user.ID, nonce); err != nil {
			return nil, fmt.Errorf("error saving nonce: %w", err)
		}
		user.Nonce = nonce
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	user, err = s.register(ctx, wallet, nonce, referrerCode)
	if errors.Is(err, common.ErrAlreadyExists) {
		// lost a race with a concurrent sign-in for the same wallet
		return repo.GetBy(ctx, models.LookupByWallet, wallet)
	}
	return user, err
}

// Create registers a new wallet user. It fails with common.ErrAlreadyExists
// when the wallet is taken.
func (s *UserService) Create(ctx context.Context, address, nonce, referrerCode string) (*models.User, error) {
	wallet, err := normalizeWallet(address)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, wallet, nonce, referrerCode)
}

// register creates the user, awards SIGNUP and, when referrerCode resolves,
// awards the referrer and opens a LINK request towards them. All of it
// commits together.
func (s *UserService) register(ctx context.Context, wallet, nonce, referrerCode string) (*models.User, error) {
	user := &models.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		ReferralCode:  newReferralCode(),
		Nonce:         nonce,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		if _, err := users.Create(ctx, user); err != nil {
			return err
		}
		if err := s.ledger.award(ctx, tx, user.ID, models.InteractionSignup, nil); err != nil {
			return err
		}

		if referrerCode == "" {
			return nil
		}
		referrer, err := users.GetBy(ctx, models.LookupByReferralCode, referrerCode)
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Info(ctx, "unknown referral code ignored", "referral_code", referrerCode)
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.ledger.award(ctx, tx, referrer.ID, models.InteractionReferralBonus,
			map[string]string{"referredUserId": user.ID}); err != nil {
			return err
		}
		_, err = s.repomanager.FriendRequests(tx).Create(ctx, &models.FriendRequest{
			ID:         uuid.NewString(),
			SenderID:   user.ID,
			ReceiverID: referrer.ID,
			Status:     models.FriendRequestPending,
			Method:     models.MethodLink,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "wallet", wallet)
	return s.FindByID(ctx, user.ID)
}

// SetPassword stores the encrypted bcrypt hash of plaintext.
func (s *UserService) SetPassword(ctx context.Context, userID, plaintext string) error {
	return s.setPassword(ctx, s.tx.Conn(), userID, plaintext)
}

func (s *UserService) setPassword(ctx context.Context, db dbx.DBTX, userID, plaintext string) error {
	if plaintext == "" {
		return fmt.Errorf("%w: password must not be empty", common.ErrValidation)
	}
	if len(plaintext) > cryptox.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", common.ErrValidation, cryptox.MaxPasswordBytes)
	}
	envelope, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("error encrypting password: %w", err)
	}
	return s.repomanager.Users(db).SetPassword(ctx, userID, envelope)
}

var credentialFields = map[models.LookupField]bool{
	models.LookupByEmail:    true,
	models.LookupByUsername: true,
	models.LookupByID:       true,
	models.LookupByWallet:   true,
}

// Authenticate looks the user up by the given field (email when empty) and
// checks candidate against the stored password. Missing users, users
// without a password and wrong passwords all yield common.ErrorUnauthorized.
func (s *UserService) Authenticate(ctx context.Context, identifier, candidate string, by models.LookupField) (*models.User, error) {
	if by == "" {
		by = models.LookupByEmail
	}
	if !credentialFields[by] {
		return nil, fmt.Errorf("%w: cannot authenticate by %q", common.ErrValidation, by)
	}
	if by == models.LookupByWallet {
		if w, err := normalizeWallet(identifier); err == nil {
			identifier = w
		}
	}

	user, err := s.repomanager.Users(s.tx.Conn()).GetBy(ctx, by, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if user.Password == "" || !s.cipher.VerifyPassword(candidate, user.Password) {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

// VerifyCredential reports whether candidate is the password of the user
// identified by identifier. It fails closed.
func (s *UserService) VerifyCredential(ctx context.Context, identifier, candidate string, by models.LookupField) bool {
	_, err := s.Authenticate(ctx, identifier, candidate, by)
	return err == nil
}

// UpdateProfile applies patch; a password in the patch is re-encrypted.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.User, error) {
	if patch.Email != nil && *patch.Email != "" && !strings.Contains(*patch.Email, "@") {
		return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		user, err := users.GetBy(ctx, models.LookupByID, userID)
		if err != nil {
			return err
		}
		patch.Apply(user)
		if err := users.Update(ctx, user); err != nil {
			return err
		}
		if patch.Password != nil {
			return s.setPassword(ctx, tx, userID, *patch.Password)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.FindByID(ctx, userID)
}

// RegisterNfc binds nfcID to the user. A tag bound to someone else yields
// common.ErrAlreadyExists and nothing is written.
func (s *UserService) RegisterNfc(ctx context.Context, userID, nfcID string) (*models.User, error) {
	nfcID = strings.TrimSpace(nfcID)
	if nfcID == "" {
		return nil, fmt.Errorf("%w: nfcId is required", common.ErrValidation)
	}

	repo := s.repomanager.Users(s.tx.Conn())
	owner, err := repo.GetBy(ctx, models.LookupByNfc, nfcID)
	switch {
	case err == nil && owner.ID == userID:
		return owner, nil
	case err == nil:
		return nil, fmt.Errorf("%w: nfc tag is registered to another user", common.ErrAlreadyExists)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}

	if err := repo.SetNfcID(ctx, userID, nfcID); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "nfc tag registered", "user_id", userID)
	return s.FindByID(ctx, userID)
}

// UploadProfilePicture validates and stores an image and saves its URL on
// the user.
func (s *UserService) UploadProfilePicture(ctx context.Context, userID, filename string, data []byte) (string, error) {
	if len(data) > MaxProfilePictureSize {
		return "", fmt.Errorf("%w: profile picture exceeds %d bytes", common.ErrPayloadTooLarge, MaxProfilePictureSize)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: file is empty", common.ErrValidation)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !pictureExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported file extension %q", common.ErrValidation, ext)
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: file is not an image", common.ErrValidation)
	}

	if _, err := s.FindByID(ctx, userID); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s-%d.%s", userID, s.clock.Now().UnixMilli(), ext)
	url, err := s.objects.Put(ctx, key, contentType, data)
	if err != nil {
		return "", fmt.Errorf("error storing profile picture: %w", err)
	}
	if err := s.repomanager.Users(s.tx.Conn()).SetProfilePicture(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

// AddFriendToList adds friendID to the user's friend set; repeats are no-ops.
func (s *UserService) AddFriendToList(ctx context.Context, userID, friendID string) error {
	return s.repomanager.Users(s.tx.Conn()).AddFriend(ctx, userID, friendID)
}

func (s *UserService) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetBy(ctx, models.LookupByID, userID)
}

func (s *UserService) FindByWallet(ctx context.Context, address string) (*models.User, error) {
	wallet, err := normalizeWallet(address)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Users(s.tx.Conn()).GetBy(ctx, models.LookupByWallet, wallet)
}

func (s *UserService) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetBy(ctx, models.LookupByReferralCode, code)
}

func (s *UserService) FindByNfc(ctx context.Context, nfcID string) (*models.User, error) {
	return s.repomanager.Users(s.tx.Conn()).GetBy(ctx, models.LookupByNfc, nfcID)
}
