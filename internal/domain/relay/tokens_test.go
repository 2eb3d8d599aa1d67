package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/janhq/companion-relay/internal/domain/relay"
)

func TestApproximateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"hello", 2},
		{"hello there", 3},
		{"one two three", 4},
		{"  spaced   out  words ", 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relay.ApproximateTokens(tt.text), "%q", tt.text)
	}
}
