package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/logging"
	"github.com/matenet/backend/internal/server/auth"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/server/repositories/nonces"
	"github.com/matenet/backend/internal/siwe"
	"github.com/matenet/backend/internal/timex"
)

// DefaultNonceTTL is how long an issued nonce stays usable.
const DefaultNonceTTL = 10 * time.Minute

const nonceBytes = 16

// Session is an issued session token together with its owner.
type Session struct {
	Token string
	User  *models.User
}

// AuthService runs wallet sign-in and password login.
type AuthService struct {
	nonces   nonces.Repository
	users    *UserService
	issuer   *auth.Issuer
	nonceTTL time.Duration
	domain   string
	clock    timex.Clock
	logger   logging.Logger
}

func NewAuthService(n nonces.Repository, users *UserService, issuer *auth.Issuer, nonceTTL time.Duration,
	domain string, clock timex.Clock, logger logging.Logger) *AuthService {
	if nonceTTL <= 0 {
		nonceTTL = DefaultNonceTTL
	}
	return &AuthService{
		nonces:   n,
		users:    users,
		issuer:   issuer,
		nonceTTL: nonceTTL,
		domain:   domain,
		clock:    clock,
		logger:   logger.With("module", "auth"),
	}
}

// IssueNonce persists and returns a fresh alphanumeric nonce.
func (s *AuthService) IssueNonce(ctx context.Context) (string, error) {
	value := base58.Encode(common.GenerateRandByteArray(nonceBytes))
	now := s.clock.Now()

	if err := s.nonces.Save(ctx, &models.Nonce{Value: value, IssuedAt: now, ExpiresAt: now.Add(s.nonceTTL)}); err != nil {
		return "", fmt.Errorf("error saving nonce: %w", err)
	}
	return value, nil
}

// SiweVerify checks the signed message, consumes its nonce, finds or creates
// the wallet's user and issues a session. referrerCode only matters when a
// new user is created.
func (s *AuthService) SiweVerify(ctx context.Context, message, signature, referrerCode string) (*Session, error) {
	now := s.clock.Now()

	msg, err := siwe.Verify(message, signature, siwe.VerifyOptions{Domain: s.domain, Now: now})
	if err != nil {
		s.logger.Warn(ctx, "siwe verification failed", "error", err)
		return nil, err
	}

	if err := s.nonces.Consume(ctx, msg.Nonce, now); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNonceInvalid
		}
		return nil, err
	}

	user, err := s.users.FindOrCreateByWallet(ctx, msg.Address, msg.Nonce, referrerCode)
	if err != nil {
		return nil, err
	}

	return s.session(user)
}

// Login authenticates with a password; by selects the identifier field.
func (s *AuthService) Login(ctx context.Context, identifier, password string, by models.LookupField) (*Session, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", common.ErrValidation)
	}

	user, err := s.users.Authenticate(ctx, identifier, password, by)
	if err != nil {
		return nil, err
	}
	return s.session(user)
}

func (s *AuthService) session(user *models.User) (*Session, error) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}

// VerifyToken validates a session token.
func (s *AuthService) VerifyToken(token string) (*auth.Claims, error) {
	return s.issuer.Verify(token)
}
