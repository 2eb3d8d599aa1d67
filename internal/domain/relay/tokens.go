package relay

import (
	"math"
	"strings"
)

const wordsPerTokenFactor = 1.3

// ApproximateTokens estimates a token count from whitespace-separated words.
func ApproximateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * wordsPerTokenFactor))
}
