// Package token mints the opaque ownership proofs handed out by successful
// lock acquisitions. A token must be unique across every acquisition a
// deployment will ever make; both generators draw at least 128 bits of
// randomness per token.
package token

import (
	"encoding/hex"
	"fmt"

	googleuuid "github.com/google/uuid"
	hashiuuid "github.com/hashicorp/go-uuid"
)

// Generator produces one fresh token per call. Mint fails only when the
// entropy source does, which callers should treat as fatal for the attempt.
type Generator interface {
	Mint() (string, error)
}

// UUID mints random version-4 UUID strings. It is the default generator.
type UUID struct{}

// Mint implements Generator.
func (UUID) Mint() (string, error) {
	id, err := googleuuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Bytes mints hex-encoded random strings of Size bytes, for callers that want
// more than the 122 random bits of a UUID.
type Bytes struct {
	Size int
}

// Mint implements Generator.
func (b Bytes) Mint() (string, error) {
	if b.Size < 16 {
		return "", fmt.Errorf("token: size %d below the 16 byte minimum", b.Size)
	}
	raw, err := hashiuuid.GenerateRandomBytes(b.Size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
