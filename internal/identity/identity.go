// Package identity generates bundle identifiers (spec §3 "BundleId: 16
// random bytes rendered as lowercase hex, assigned at bundle creation,
// never mutated"). Resolving an existing bundle's id by walking the
// FROM chain lives in commitlog.Chain.BundleID — this package only
// covers minting a fresh one.
package identity

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// New mints a fresh 16-byte BundleId as 32 lowercase hex characters.
func New() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
