package chunker

import (
	"strings"

	"github.com/dshills/crawldigest/pkg/types"
)

const (
	// DefaultChunksPerGroup is the step between consecutive group starts
	DefaultChunksPerGroup = 2
	// DefaultMaxChunksPerGroup is the window width of a group
	DefaultMaxChunksPerGroup = 3

	groupSeparator = "\n\n"
)

// GroupConfig controls how chunks are batched for summarization.
// When MaxChunksPerGroup exceeds ChunksPerGroup consecutive groups share chunks.
type GroupConfig struct {
	ChunksPerGroup    int
	MaxChunksPerGroup int
}

// DefaultGroupConfig returns the default grouping step and width
func DefaultGroupConfig() GroupConfig {
	return GroupConfig{
		ChunksPerGroup:    DefaultChunksPerGroup,
		MaxChunksPerGroup: DefaultMaxChunksPerGroup,
	}
}

func (g GroupConfig) normalized() GroupConfig {
	if g.ChunksPerGroup <= 0 {
		g.ChunksPerGroup = DefaultChunksPerGroup
	}
	if g.MaxChunksPerGroup < g.ChunksPerGroup {
		g.MaxChunksPerGroup = g.ChunksPerGroup
	}
	return g
}

// BuildGroups windows persisted chunks (ordered by index) into pending groups.
// Group i starts at chunk i*ChunksPerGroup and spans up to MaxChunksPerGroup chunks.
func BuildGroups(chunks []*types.Chunk, cfg GroupConfig) []*types.ChunkGroup {
	cfg = cfg.normalized()

	groups := make([]*types.ChunkGroup, 0, (len(chunks)+cfg.ChunksPerGroup-1)/cfg.ChunksPerGroup)
	for i := 0; i < len(chunks); i += cfg.ChunksPerGroup {
		end := i + cfg.MaxChunksPerGroup
		if end > len(chunks) {
			end = len(chunks)
		}
		window := chunks[i:end]

		texts := make([]string, 0, len(window))
		ids := make([]int64, 0, len(window))
		tokens := 0
		for _, chunk := range window {
			texts = append(texts, chunk.Text)
			tokens += chunk.TokenCount
			// Unsaved chunks carry no id
			if chunk.ID > 0 {
				ids = append(ids, chunk.ID)
			}
		}

		groups = append(groups, &types.ChunkGroup{
			ContentItemID:  window[0].ContentItemID,
			Index:          i / cfg.ChunksPerGroup,
			ChunkIDs:       ids,
			CombinedText:   strings.Join(texts, groupSeparator),
			CombinedTokens: tokens,
			Status:         types.GroupPending,
		})
	}
	return groups
}
