package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeUserID(t *testing.T) {
	tests := []struct {
		level PIILevel
		check func(t *testing.T, got string)
	}{
		{PIILevelNone, func(t *testing.T, got string) { assert.Equal(t, "[REDACTED]", got) }},
		{PIILevelFull, func(t *testing.T, got string) { assert.Equal(t, "user-123", got) }},
		{PIILevelHashed, func(t *testing.T, got string) {
			assert.Len(t, got, 8)
			assert.NotEqual(t, "user-123", got)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			tt.check(t, NewSanitizer(tt.level, "salt").SanitizeUserID("user-123"))
		})
	}

	assert.Equal(t, "", NewSanitizer(PIILevelNone, "salt").SanitizeUserID(""))
}

func TestHashedIDsAreStablePerSalt(t *testing.T) {
	a := NewSanitizer(PIILevelHashed, "salt-a")
	b := NewSanitizer(PIILevelHashed, "salt-b")

	assert.Equal(t, a.SanitizeUserID("u1"), a.SanitizeUserID("u1"))
	assert.NotEqual(t, a.SanitizeUserID("u1"), b.SanitizeUserID("u1"))
}

func TestSanitizeContentHashesPII(t *testing.T) {
	s := NewSanitizer(PIILevelHashed, "salt")
	got := s.SanitizeContent("mail me at rin@example.com or call 555-123-4567")

	assert.NotContains(t, got, "rin@example.com")
	assert.NotContains(t, got, "555-123-4567")
	assert.Contains(t, got, "[EMAIL:")
	assert.Contains(t, got, "[PHONE:")
	assert.Contains(t, got, "mail me at")
}

func TestParsePIILevel(t *testing.T) {
	level, err := ParsePIILevel("hashed")
	require.NoError(t, err)
	assert.Equal(t, PIILevelHashed, level)

	_, err = ParsePIILevel("partial")
	assert.Error(t, err)
}
