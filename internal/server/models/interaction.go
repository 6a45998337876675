package models

import (
	"encoding/json"
	"time"
)

// InteractionType classifies a points ledger entry.
type InteractionType string

const (
	InteractionSignup        InteractionType = "SIGNUP"
	InteractionAddFriend     InteractionType = "ADD_FRIEND"
	InteractionNFTRedeem     InteractionType = "NFT_REDEEM"
	InteractionReferralBonus InteractionType = "REFERRAL_BONUS"
)

// PointValues maps each interaction type to the points it awards.
var PointValues = map[InteractionType]int64{
	InteractionSignup:        10,
	InteractionAddFriend:     5,
	InteractionNFTRedeem:     0,
	InteractionReferralBonus: 10,
}

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	_, ok := PointValues[t]
	return ok
}

// Interaction is an append-only points ledger entry.
type Interaction struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       InteractionType `json:"type"`
	PointValue int64           `json:"pointValue"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
