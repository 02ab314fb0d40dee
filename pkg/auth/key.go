package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix identifies SODAV API keys
	KeyPrefix = "sodav_"
	// KeyLength is the number of random bytes in a key (32 bytes = 256 bits)
	KeyLength = 32
	// displayChars is how much of the encoded part is kept in the display prefix
	displayChars = 8
)

// KeyGenerator generates and hashes API keys.
type KeyGenerator struct{}

// NewKeyGenerator creates a new key generator
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// Generate creates a new API key.
// Format: sodav_<base64url(32 random bytes)>
//
// The raw key is returned once and must be handed to the caller; only hash
// and prefix are stored.
func (g *KeyGenerator) Generate() (key string, hash string, prefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	key = KeyPrefix + encoded

	return key, g.Hash(key), g.DisplayPrefix(key), nil
}

// Hash computes the SHA-256 hex digest used to look a key up.
func (g *KeyGenerator) Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ValidateFormat checks that key looks like a key this generator produced.
func (g *KeyGenerator) ValidateFormat(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}

	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}

	return nil
}

// DisplayPrefix returns the prefix shown in listings, or "" when key does not
// carry KeyPrefix.
func (g *KeyGenerator) DisplayPrefix(key string) string {
	if !strings.HasPrefix(key, KeyPrefix) {
		return ""
	}

	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) >= displayChars {
		return KeyPrefix + encoded[:displayChars]
	}

	return key
}
