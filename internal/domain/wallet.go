package domain

import "time"

// Wallet binds a user to the public key trades are attributed to.
type Wallet struct {
	UserID    string
	PublicKey string // base58
	Label     string
	CreatedAt time.Time
}
