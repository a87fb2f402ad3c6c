package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/pkg/types"
)

var (
	// ErrNoChunks is returned when an item's text yields no chunks
	ErrNoChunks = errors.New("text produced no chunks")
	// ErrNoGroups is returned when an item's chunks yield no groups
	ErrNoGroups = errors.New("chunks produced no groups")
)

// ChunkStage splits pending items into chunks and chunk groups
type ChunkStage struct {
	store     storage.Storage
	chunker   *chunker.Chunker
	grouping  chunker.GroupConfig
	batchSize int
	lease     time.Duration
}

// NewChunkStage creates the pending -> chunked stage
func NewChunkStage(store storage.Storage, c *chunker.Chunker, grouping chunker.GroupConfig, batchSize int, lease time.Duration) *ChunkStage {
	return &ChunkStage{
		store:     store,
		chunker:   c,
		grouping:  grouping,
		batchSize: batchSize,
		lease:     lease,
	}
}

func (s *ChunkStage) Name() string {
	return "chunk"
}

func (s *ChunkStage) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	items, err := s.store.ClaimContentItems(ctx, types.ItemPending, s.batchSize, s.lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending items: %w", err)
	}

	result := &BatchResult{Claimed: len(items)}
	for _, item := range items {
		chunks, groups, err := s.processItem(ctx, item)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.URL, err))
			log.Printf("[chunk] item %d (%s) failed: %v", item.ID, item.URL, err)
			s.markFailed(ctx, item)
			continue
		}
		result.Succeeded++
		if verbose.Load() {
			log.Printf("[chunk] item %d: %d chunks, %d groups", item.ID, chunks, groups)
		}
	}
	return result, nil
}

// processItem writes the item's chunks and groups and marks it chunked in
// one transaction. Running it again on unchanged text rewrites the same rows.
func (s *ChunkStage) processItem(ctx context.Context, item *storage.ContentItem) (int, int, error) {
	chunks := s.chunker.Chunk(item.RawText, item.Kind)
	if len(chunks) == 0 {
		return 0, 0, ErrNoChunks
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range chunks {
		row := storage.FromTypesChunk(c, item.ID)
		if err := tx.UpsertChunk(ctx, row); err != nil {
			return 0, 0, fmt.Errorf("failed to store chunk: %w", err)
		}
		c.ID = row.ID
		c.ContentItemID = item.ID
	}
	if _, err := tx.DeleteChunksFrom(ctx, item.ID, len(chunks)); err != nil {
		return 0, 0, err
	}

	groups := chunker.BuildGroups(chunks, s.grouping)
	if len(groups) == 0 {
		return 0, 0, ErrNoGroups
	}
	for _, g := range groups {
		row := storage.FromTypesGroup(g)
		row.ContentItemID = item.ID
		if err := tx.UpsertChunkGroup(ctx, row); err != nil {
			return 0, 0, fmt.Errorf("failed to store chunk group: %w", err)
		}
		// A group that failed on an earlier run gets another attempt
		if row.Status == types.GroupFailed {
			if err := tx.UpdateChunkGroupStatus(ctx, row.ID, types.GroupPending); err != nil {
				return 0, 0, err
			}
			row.Status = types.GroupPending
		}
		// Changed text invalidates any partial staged for this position
		if row.Status == types.GroupPending {
			if err := tx.DeletePartialSummary(ctx, item.ID, row.GroupIndex); err != nil {
				return 0, 0, err
			}
		}
	}
	if _, err := tx.DeleteChunkGroupsFrom(ctx, item.ID, len(groups)); err != nil {
		return 0, 0, err
	}

	if err := tx.UpdateContentItemTokens(ctx, item.ID, types.EstimateTokens(item.RawText)); err != nil {
		return 0, 0, err
	}
	if err := tx.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemChunked); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(chunks), len(groups), nil
}

func (s *ChunkStage) markFailed(ctx context.Context, item *storage.ContentItem) {
	err := s.store.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemFailed)
	if err != nil && !errors.Is(err, storage.ErrClaimLost) {
		log.Printf("[chunk] item %d: failed to mark failed: %v", item.ID, err)
	}
}
