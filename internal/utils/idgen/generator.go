package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length.
// Uses only alphanumeric characters (0-9, a-z) - no dashes or special characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length*2)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	const charset = "0123456789abcdefghijklmnopqrstuvwxyz"
	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[bytes[i]%36]
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// NewConnectionID returns an opaque relay connection identifier.
func NewConnectionID() (string, error) {
	return GenerateSecureID("conn", 24)
}

// NewMessageID returns a lowercase ULID. ULIDs sort by creation time, so message IDs
// minted in one process order the same way as their timestamps.
func NewMessageID() string {
	return strings.ToLower(ulid.Make().String())
}

// NewEntityID returns a random UUID for conversations and characters.
func NewEntityID() string {
	return uuid.NewString()
}
