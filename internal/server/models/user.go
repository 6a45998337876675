// Package models defines server-side data models persisted in the database.
package models

import "time"

// Socials holds the user's public social handles.
type Socials struct {
	Twitter   string `json:"twitter,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	Farcaster string `json:"farcaster,omitempty"`
	Base      string `json:"base,omitempty"`
}

// User is an identity record. WalletAddress, NfcID, Username and Email are
// optional but unique when present. Password holds the encrypted bcrypt
// envelope and is never serialized.
type User struct {
	ID                string    `json:"userId"`
	WalletAddress     string    `json:"walletAddress,omitempty"`
	NfcID             string    `json:"nfcId,omitempty"`
	Username          string    `json:"username,omitempty"`
	Email             string    `json:"email,omitempty"`
	FullName          string    `json:"fullName,omitempty"`
	Bio               string    `json:"bio,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	Password          string    `json:"-"`
	ReferralCode      string    `json:"referralCode"`
	Socials           Socials   `json:"socials"`
	Friends           []string  `json:"friends"`
	Points            int64     `json:"points"`
	Nonce             string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// HasFriend reports whether id is in u's friend set.
func (u *User) HasFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// ProfilePatch is a partial profile update; nil fields are left unchanged.
type ProfilePatch struct {
	Username *string  `json:"username"`
	FullName *string  `json:"fullName"`
	Bio      *string  `json:"bio"`
	Email    *string  `json:"email"`
	Socials  *Socials `json:"socials"`
	Password *string  `json:"password"`
}

// Apply copies the non-nil profile fields onto u. Password is handled by
// the credential store and ignored here.
func (p ProfilePatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Socials != nil {
		u.Socials = *p.Socials
	}
}

// LookupField names a unique user attribute usable as a login identifier.
type LookupField string

const (
	LookupByID           LookupField = "userId"
	LookupByWallet       LookupField = "walletAddress"
	LookupByEmail        LookupField = "email"
	LookupByUsername     LookupField = "username"
	LookupByNfc          LookupField = "nfcId"
	LookupByReferralCode LookupField = "referralCode"
)
