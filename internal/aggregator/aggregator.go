// Package aggregator turns a chunked content item into its final summary.
//
// Each pending chunk group is summarized in ascending order and staged as a
// durable partial summary. Once every group is settled the partials are
// either promoted (one partial) or merged (several) into the final summary.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/internal/summarizer"
	"github.com/dshills/crawldigest/pkg/types"
)

var (
	// ErrNoGroups is returned for a chunked item that has no chunk groups
	ErrNoGroups = errors.New("content item has no chunk groups")
	// ErrMergeFailed is returned when the merge call fails. The item keeps
	// its partials, stays chunked and stays claimed until its lease expires.
	ErrMergeFailed = errors.New("merge summary failed")
)

// Outcome reports what Process did to one item
type Outcome struct {
	Status           types.ItemStatus
	GroupsTotal      int
	GroupsSummarized int // Summarized during this call
	GroupsFailed     int // Failed overall, including earlier passes
	Merged           bool
	Summary          *storage.Summary
}

// Aggregator summarizes chunk groups and writes final summaries
type Aggregator struct {
	store      storage.Storage
	summarizer summarizer.Summarizer

	// Verbose reports whether per-group log lines are wanted. It is read
	// at every log site; nil means quiet.
	Verbose func() bool
}

// New creates a new Aggregator
func New(store storage.Storage, s summarizer.Summarizer) *Aggregator {
	return &Aggregator{store: store, summarizer: s}
}

// Process summarizes the item's pending groups and finalizes it. The item
// must be claimed; its claim token guards every status write. Errors are
// returned after the item status has been settled.
func (a *Aggregator) Process(ctx context.Context, item *storage.ContentItem) (*Outcome, error) {
	outcome := &Outcome{Status: types.ItemChunked}

	groups, err := a.store.ListChunkGroups(ctx, item.ID)
	if err != nil {
		return outcome, a.fail(ctx, item, outcome, fmt.Errorf("failed to list chunk groups: %w", err))
	}
	if len(groups) == 0 {
		return outcome, a.fail(ctx, item, outcome, ErrNoGroups)
	}
	outcome.GroupsTotal = len(groups)

	partials, err := a.store.ListPartialSummaries(ctx, item.ID)
	if err != nil {
		return outcome, a.fail(ctx, item, outcome, fmt.Errorf("failed to list partial summaries: %w", err))
	}
	staged := make(map[int]bool, len(partials))
	for _, p := range partials {
		staged[p.GroupIndex] = true
	}

	for _, group := range groups {
		switch {
		case group.Status == types.GroupFailed:
			continue
		case group.Status == types.GroupSummarized && staged[group.GroupIndex]:
			continue
		}

		// A summarized group without a partial is from an already finalized
		// run and gets summarized again
		if err := a.summarizeGroup(ctx, item, group, len(groups)); err != nil {
			if errors.Is(err, errGroupStore) {
				return outcome, a.fail(ctx, item, outcome, err)
			}
			log.Printf("[summarize] item %d group %d failed: %v", item.ID, group.GroupIndex, err)
			continue
		}
		outcome.GroupsSummarized++
	}

	groups, err = a.store.ListChunkGroups(ctx, item.ID)
	if err != nil {
		return outcome, a.fail(ctx, item, outcome, fmt.Errorf("failed to list chunk groups: %w", err))
	}
	for _, g := range groups {
		if g.Status == types.GroupFailed {
			outcome.GroupsFailed++
		}
	}

	partials, err = a.store.ListPartialSummaries(ctx, item.ID)
	if err != nil {
		return outcome, a.fail(ctx, item, outcome, fmt.Errorf("failed to list partial summaries: %w", err))
	}

	if len(partials) == 0 {
		if err := a.store.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemAggregationFailed); err != nil {
			return outcome, err
		}
		outcome.Status = types.ItemAggregationFailed
		return outcome, nil
	}

	final := &storage.Summary{
		URL:           item.URL,
		Title:         item.Title,
		OriginalText:  item.RawText,
		CodeSnippets:  item.CodeSnippets,
		Kind:          item.Kind,
		ContentItemID: item.ID,
		IsPartial:     outcome.GroupsFailed > 0,
	}

	var result types.SummaryResult
	if len(partials) == 1 {
		result = partials[0].Result
		groupID := partials[0].ChunkGroupID
		final.ChunkGroupID = &groupID
	} else {
		merged, err := a.merge(ctx, item, partials)
		if err != nil {
			// The live claim holds the item back until the lease runs out
			return outcome, fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		result = *merged
		outcome.Merged = true
	}
	result.Normalize()

	final.Summary = result.Summary
	final.KeyPoints = result.KeyPoints
	final.Category = result.Category
	final.Sentiment = result.Sentiment

	if err := a.finalize(ctx, item, final); err != nil {
		return outcome, a.fail(ctx, item, outcome, err)
	}

	outcome.Status = types.ItemSummarized
	outcome.Summary = final
	return outcome, nil
}

var errGroupStore = errors.New("group write failed")

// summarizeGroup summarizes one group and stages its partial. Summarizer
// errors mark the group failed; store errors are wrapped in errGroupStore.
func (a *Aggregator) summarizeGroup(ctx context.Context, item *storage.ContentItem, group *storage.ChunkGroup, total int) error {
	result, err := a.summarizer.Summarize(ctx, summarizer.Request{
		Text: group.CombinedText,
		Context: summarizer.RequestContext{
			Title: item.Title,
			Kind:  item.Kind,
			Part:  group.GroupIndex + 1,
			Total: total,
			Mode:  summarizer.ModeChunk,
		},
	})
	if err != nil {
		if stErr := a.store.UpdateChunkGroupStatus(ctx, group.ID, types.GroupFailed); stErr != nil {
			return fmt.Errorf("%w: %v", errGroupStore, stErr)
		}
		return err
	}
	result.Normalize()

	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errGroupStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertPartialSummary(ctx, &storage.PartialSummary{
		ContentItemID: item.ID,
		GroupIndex:    group.GroupIndex,
		ChunkGroupID:  group.ID,
		Result:        *result,
	}); err != nil {
		return fmt.Errorf("%w: %v", errGroupStore, err)
	}
	if err := tx.UpdateChunkGroupStatus(ctx, group.ID, types.GroupSummarized); err != nil {
		return fmt.Errorf("%w: %v", errGroupStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", errGroupStore, err)
	}

	if a.verbose() {
		log.Printf("[summarize] item %d group %d/%d summarized (%d tokens)",
			item.ID, group.GroupIndex+1, total, group.CombinedTokens)
	}
	return nil
}

func (a *Aggregator) verbose() bool {
	return a.Verbose != nil && a.Verbose()
}

// merge combines partial summaries, in group order, with their pooled key points
func (a *Aggregator) merge(ctx context.Context, item *storage.ContentItem, partials []*storage.PartialSummary) (*types.SummaryResult, error) {
	texts := make([]string, 0, len(partials))
	results := make([]types.SummaryResult, 0, len(partials))
	for _, p := range partials {
		texts = append(texts, p.Result.Summary)
		results = append(results, p.Result)
	}

	return a.summarizer.Summarize(ctx, summarizer.Request{
		Text: strings.Join(texts, "\n\n"),
		Context: summarizer.RequestContext{
			Title:     item.Title,
			Kind:      item.Kind,
			Part:      1,
			Total:     1,
			Mode:      summarizer.ModeMerge,
			KeyPoints: PoolKeyPoints(results),
		},
	})
}

// finalize writes the final summary, drops the partials and marks the item summarized
func (a *Aggregator) finalize(ctx context.Context, item *storage.ContentItem, final *storage.Summary) error {
	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertSummary(ctx, final); err != nil {
		return err
	}
	if err := tx.DeletePartialSummaries(ctx, item.ID); err != nil {
		return err
	}
	if err := tx.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemSummarized); err != nil {
		return err
	}
	return tx.Commit()
}

// fail marks the item failed and returns cause. A lost claim is left alone
// since another worker owns the item now.
func (a *Aggregator) fail(ctx context.Context, item *storage.ContentItem, outcome *Outcome, cause error) error {
	if errors.Is(cause, storage.ErrClaimLost) {
		return cause
	}
	if err := a.store.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemFailed); err != nil {
		log.Printf("[summarize] item %d: failed to mark failed: %v", item.ID, err)
		return cause
	}
	outcome.Status = types.ItemFailed
	return cause
}

// PoolKeyPoints concatenates key points in order, dropping empty and
// repeated entries
func PoolKeyPoints(results []types.SummaryResult) []string {
	seen := make(map[string]bool)
	pooled := []string{}
	for _, r := range results {
		for _, kp := range r.KeyPoints {
			kp = strings.TrimSpace(kp)
			if kp == "" || seen[kp] {
				continue
			}
			seen[kp] = true
			pooled = append(pooled, kp)
		}
	}
	return pooled
}
