package models

import "time"

// Nonce is a single-use sign-in challenge.
type Nonce struct {
	Value      string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}
