package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-pool-sniper/internal/domain"
)

// ComputeRequestID computes a deterministic request_id using SHA256.
// Formula: SHA256(user_id|mint|side|last_update_time)
// Returns hex-encoded hash (64 characters).
// Redelivered notifications for the same pool version map to the same request.
func ComputeRequestID(
	userID string,
	mint string,
	side domain.Side,
	lastUpdateTime uint32,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		userID,
		mint,
		string(side),
		lastUpdateTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeVerdictID computes a deterministic verdict_id using SHA256.
// Formula: SHA256(pool_account|mint|last_update_time|slot)
func ComputeVerdictID(
	poolAccount string,
	mint string,
	lastUpdateTime uint32,
	slot int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		poolAccount,
		mint,
		lastUpdateTime,
		slot,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
