package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeCoinID computes a deterministic coin_id using SHA256.
// Formula: SHA256(creator_id|symbol|name|created_at)
// Returns hex-encoded hash (64 characters).
func ComputeCoinID(creatorID, symbol, name string, createdAt int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		creatorID,
		symbol,
		name,
		createdAt,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
