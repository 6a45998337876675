// Package auth issues and verifies session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
	"github.com/matenet/backend/internal/timex"
)

// DefaultSessionTTL is the session lifetime when none is configured.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Claims is the session payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  timex.Clock
}

func NewIssuer(secret []byte, ttl time.Duration, clock timex.Clock) *Issuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Issuer{secret: secret, ttl: ttl, clock: clock}
}

func (i *Issuer) Issue(user *models.User) (string, error) {
	return GenerateToken(user, i.secret, i.ttl, i.clock.Now())
}

func (i *Issuer) Verify(token string) (*Claims, error) {
	return ParseToken(token, i.secret, i.clock)
}

func GenerateToken(user *models.User, secretKey []byte, validityDuration time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID:        user.ID,
		Username:      user.Username,
		WalletAddress: user.WalletAddress,
		Email:         user.Email,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates signature, algorithm and expiry. Expired tokens yield
// common.ErrTokenExpired; any other failure yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte, clock timex.Clock) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
