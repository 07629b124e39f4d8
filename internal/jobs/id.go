// Package jobs provides ID generation for pipeline jobs and output assets.
package jobs

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GenerateID creates a cryptographically random job ID with the given
// prefix. The prefix should include a trailing dash, e.g. "job-".
func GenerateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s ID", prefix)
	}
	return prefix + hex.EncodeToString(b)
}

// NewAssetID creates the UUID used for output object keys. Asset IDs are
// UUIDs rather than prefixed hex so keys sort randomly within a tenant
// prefix and never collide across pipeline retries.
func NewAssetID() string {
	return uuid.NewString()
}
