package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
)

type userRepo struct {
	s *Store
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	cp.Friends = append([]string(nil), u.Friends...)
	return &cp
}

func fieldValue(u *models.User, field models.LookupField) string {
	switch field {
	case models.LookupByID:
		return u.ID
	case models.LookupByWallet:
		return u.WalletAddress
	case models.LookupByEmail:
		return u.Email
	case models.LookupByUsername:
		return u.Username
	case models.LookupByNfc:
		return u.NfcID
	case models.LookupByReferralCode:
		return u.ReferralCode
	}
	return ""
}

var uniqueFields = []struct {
	field      models.LookupField
	constraint string
}{
	{models.LookupByWallet, "users_wallet_address_key"},
	{models.LookupByNfc, "users_nfc_id_key"},
	{models.LookupByUsername, "users_username_key"},
	{models.LookupByEmail, "users_email_key"},
	{models.LookupByReferralCode, "users_referral_code_key"},
}

// checkUnique reports a conflict if another user holds any of u's unique
// values.
func (r *userRepo) checkUnique(u *models.User) error {
	for _, uf := range uniqueFields {
		v := fieldValue(u, uf.field)
		if v == "" {
			continue
		}
		for id, other := range r.s.data.users {
			if id != u.ID && fieldValue(other, uf.field) == v {
				return fmt.Errorf("%w: %s", common.ErrAlreadyExists, uf.constraint)
			}
		}
	}
	return nil
}

func (r *userRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.users[user.ID]; ok {
		return nil, fmt.Errorf("%w: users_pkey", common.ErrAlreadyExists)
	}
	if err := r.checkUnique(user); err != nil {
		return nil, err
	}

	now := r.s.clock.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	stored := cloneUser(user)
	stored.Friends = nil
	r.s.data.users[user.ID] = stored

	return user, nil
}

func (r *userRepo) GetBy(ctx context.Context, field models.LookupField, value string) (*models.User, error) {
	defer r.s.lock(ctx)()

	switch field {
	case models.LookupByID, models.LookupByWallet, models.LookupByEmail,
		models.LookupByUsername, models.LookupByNfc, models.LookupByReferralCode:
	default:
		return nil, fmt.Errorf("%w: unknown lookup field %q", common.ErrValidation, field)
	}
	if value == "" {
		return nil, common.ErrorNotFound
	}
	if field == models.LookupByID {
		if _, err := uuid.Parse(value); err != nil {
			return nil, common.ErrorNotFound
		}
	}

	for _, u := range r.s.data.users {
		if fieldValue(u, field) == value {
			found := cloneUser(u)
			found.Friends = append([]string{}, r.s.data.friends[u.ID]...)
			return found, nil
		}
	}
	return nil, common.ErrorNotFound
}

// mutate applies fn to a working copy of the user and stores it when the
// copy still satisfies the uniqueness rules.
func (r *userRepo) mutate(ctx context.Context, userID string, fn func(u *models.User)) error {
	defer r.s.lock(ctx)()

	current, ok := r.s.data.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	next := cloneUser(current)
	fn(next)
	if err := r.checkUnique(next); err != nil {
		return err
	}
	next.UpdatedAt = r.s.clock.Now()
	r.s.data.users[userID] = next
	return nil
}

func (r *userRepo) Update(ctx context.Context, user *models.User) error {
	return r.mutate(ctx, user.ID, func(u *models.User) {
		u.Username = user.Username
		u.Email = user.Email
		u.FullName = user.FullName
		u.Bio = user.Bio
		u.Socials = user.Socials
	})
}

func (r *userRepo) SetPassword(ctx context.Context, userID, envelope string) error {
	return r.mutate(ctx, userID, func(u *models.User) { u.Password = envelope })
}

func (r *userRepo) SetNonce(ctx context.Context, userID, nonce string) error {
	return r.mutate(ctx, userID, func(u *models.User) { u.Nonce = nonce })
}

func (r *userRepo) SetNfcID(ctx context.Context, userID, nfcID string) error {
	return r.mutate(ctx, userID, func(u *models.User) { u.NfcID = nfcID })
}

func (r *userRepo) SetProfilePicture(ctx context.Context, userID, url string) error {
	return r.mutate(ctx, userID, func(u *models.User) { u.ProfilePictureURL = url })
}

func (r *userRepo) AddPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	var balance int64
	err := r.mutate(ctx, userID, func(u *models.User) {
		u.Points += delta
		balance = u.Points
	})
	return balance, err
}

func (r *userRepo) AddFriend(ctx context.Context, userID, friendID string) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.users[userID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.s.data.users[friendID]; !ok {
		return common.ErrorNotFound
	}
	for _, f := range r.s.data.friends[userID] {
		if f == friendID {
			return nil
		}
	}
	r.s.data.friends[userID] = append(r.s.data.friends[userID], friendID)
	return nil
}
