package models

import "time"

// FriendRequestStatus is the state of a friend request. PENDING may move to
// ACCEPTED or REJECTED; both are terminal.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

// FriendRequestMethod records how the sender found the receiver.
type FriendRequestMethod string

const (
	MethodLink FriendRequestMethod = "LINK"
	MethodQR   FriendRequestMethod = "QR"
	MethodNFC  FriendRequestMethod = "NFC"
)

// Valid reports whether m is a known method.
func (m FriendRequestMethod) Valid() bool {
	switch m {
	case MethodLink, MethodQR, MethodNFC:
		return true
	}
	return false
}

type FriendRequest struct {
	ID         string              `json:"id"`
	SenderID   string              `json:"senderId"`
	ReceiverID string              `json:"receiverId"`
	Status     FriendRequestStatus `json:"status"`
	Method     FriendRequestMethod `json:"method"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Involves reports whether the request is between a and b in either
// direction.
func (r *FriendRequest) Involves(a, b string) bool {
	return (r.SenderID == a && r.ReceiverID == b) || (r.SenderID == b && r.ReceiverID == a)
}

// TargetSelector identifies a friend-request receiver. Resolution order is
// ReferralCode, then NfcID, then WalletAddress.
type TargetSelector struct {
	ReferralCode  string
	NfcID         string
	WalletAddress string
}

// Empty reports whether no selector field is set.
func (s TargetSelector) Empty() bool {
	return s.ReferralCode == "" && s.NfcID == "" && s.WalletAddress == ""
}
