package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// PIILevel defines how much user data reaches logs, traces and metrics.
type PIILevel string

const (
	// PIILevelNone redacts all user data
	PIILevelNone PIILevel = "none"
	// PIILevelHashed replaces identifiers with salted hashes
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull performs no sanitization
	PIILevelFull PIILevel = "full"
)

// ParsePIILevel validates a configured level.
func ParsePIILevel(v string) (PIILevel, error) {
	switch PIILevel(v) {
	case PIILevelNone, PIILevelHashed, PIILevelFull:
		return PIILevel(v), nil
	}
	return "", fmt.Errorf("unknown PII level %q", v)
}

// Sanitizer scrubs user identifiers and message content before they reach telemetry.
type Sanitizer struct {
	level PIILevel
	salt  string

	emailPattern *regexp.Regexp
	phonePattern *regexp.Regexp
	ipv4Pattern  *regexp.Regexp
}

// NewSanitizer creates a sanitizer. salt keeps hashes stable per deployment.
func NewSanitizer(level PIILevel, salt string) *Sanitizer {
	return &Sanitizer{
		level:        level,
		salt:         salt,
		emailPattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		phonePattern: regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		ipv4Pattern:  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	}
}

// Level returns the configured level.
func (s *Sanitizer) Level() PIILevel {
	return s.level
}

// SanitizeUserID sanitizes a user ID based on the configured PII level
func (s *Sanitizer) SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}

	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return userID
	default:
		return s.hash(userID)
	}
}

// SanitizeContent sanitizes chat text based on the configured PII level
func (s *Sanitizer) SanitizeContent(content string) string {
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return content
	default:
		return s.hashPII(content)
	}
}

// SanitizeRemoteAddr hashes client addresses unless full PII is allowed.
func (s *Sanitizer) SanitizeRemoteAddr(addr string) string {
	if addr == "" || s.level == PIILevelFull {
		return addr
	}
	if s.level == PIILevelNone {
		return "[REDACTED]"
	}
	return s.hash(addr)
}

func (s *Sanitizer) hashPII(input string) string {
	result := s.emailPattern.ReplaceAllStringFunc(input, func(match string) string {
		return fmt.Sprintf("[EMAIL:%s]", s.hash(match))
	})
	result = s.phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[PHONE:%s]", s.hash(match))
	})
	return s.ipv4Pattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[IP:%s]", s.hash(match))
	})
}

// hash creates a salted SHA-256 hash truncated to 8 hex chars
func (s *Sanitizer) hash(data string) string {
	h := sha256.New()
	h.Write([]byte(data + s.salt))
	return hex.EncodeToString(h.Sum(nil))[:8]
}
