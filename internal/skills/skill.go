// Package skills is the long-term memory of learned objection handling: a
// Redis-backed store of Skills keyed by a stable fingerprint of the objection,
// plus exact similarity search over their embeddings.
package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const keyPrefix = "skill:"

// Skill is one learned objection/rebuttal pair.
type Skill struct {
	Fingerprint string    `json:"fingerprint"`
	Trigger     string    `json:"trigger"`
	Rebuttal    string    `json:"rebuttal"`
	Embedding   []float32 `json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Fingerprint derives the slot key for an objection. It is the hex SHA-256 of
// the exact trigger text, so it is identical across processes and restarts.
func Fingerprint(trigger string) string {
	sum := sha256.Sum256([]byte(trigger))
	return hex.EncodeToString(sum[:])
}

func skillKey(fingerprint string) string {
	return keyPrefix + fingerprint
}
