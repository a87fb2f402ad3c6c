package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dshills/crawldigest/internal/aggregator"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/pkg/types"
)

// SummarizeStage summarizes chunked items into final summaries
type SummarizeStage struct {
	store      storage.Storage
	aggregator *aggregator.Aggregator
	batchSize  int
	lease      time.Duration
}

// NewSummarizeStage creates the chunked -> summarized stage
func NewSummarizeStage(store storage.Storage, agg *aggregator.Aggregator, batchSize int, lease time.Duration) *SummarizeStage {
	return &SummarizeStage{
		store:      store,
		aggregator: agg,
		batchSize:  batchSize,
		lease:      lease,
	}
}

func (s *SummarizeStage) Name() string {
	return "summarize"
}

func (s *SummarizeStage) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	items, err := s.store.ClaimContentItems(ctx, types.ItemChunked, s.batchSize, s.lease)
	if err != nil {
		return nil, fmt.Errorf("failed to claim chunked items: %w", err)
	}

	result := &BatchResult{Claimed: len(items)}
	for _, item := range items {
		outcome, err := s.aggregator.Process(ctx, item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.URL, err))
			log.Printf("[summarize] item %d (%s): %v", item.ID, item.URL, err)
		}

		switch outcome.Status {
		case types.ItemSummarized:
			result.Succeeded++
			if verbose.Load() {
				log.Printf("[summarize] item %d: %d groups, %d failed, merged=%t",
					item.ID, outcome.GroupsTotal, outcome.GroupsFailed, outcome.Merged)
			}
		case types.ItemChunked:
			result.Deferred++
		default:
			result.Failed++
			if err == nil {
				log.Printf("[summarize] item %d (%s): %s", item.ID, item.URL, outcome.Status)
			}
		}
	}
	return result, nil
}
