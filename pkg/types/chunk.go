package types

import (
	"errors"
	"unicode/utf8"
)

// CharsPerToken is the fixed character-to-token ratio used for all sizing decisions
const CharsPerToken = 4

// EstimateTokens approximates the token count of s as ceil(runes/4)
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Chunk is a contiguous, trimmed slice of a content item's text
type Chunk struct {
	ID            int64
	ContentItemID int64
	Index         int // zero-based, contiguous within the parent
	Text          string
	TokenCount    int
	Kind          ContentKind
}

// Validate checks if the chunk is well formed
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return ErrEmptyContent
	}
	if c.Index < 0 {
		return errors.New("chunk index must be non-negative")
	}
	if c.TokenCount != EstimateTokens(c.Text) {
		return errors.New("token count does not match text")
	}
	return nil
}

// ChunkGroup is a window of consecutive chunks summarized in one call
type ChunkGroup struct {
	ID             int64
	ContentItemID  int64
	Index          int
	ChunkIDs       []int64
	CombinedText   string
	CombinedTokens int
	Status         GroupStatus
}
