package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/internal/summarizer"
	"github.com/dshills/crawldigest/pkg/types"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// testConfig uses small budgets so short texts produce several chunks
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	cfg.IdleBackoff = 5 * time.Millisecond
	cfg.WorkDelay = time.Millisecond
	cfg.ErrorBackoff = 10 * time.Millisecond
	cfg.Chunking = chunker.Config{MaxTokensPerChunk: 50, MinTokensPerChunk: 10, OverlapTokens: 5}
	return cfg
}

// article builds n paragraphs of roughly 30 tokens each
func article(n int, seed string) string {
	paras := make([]string, n)
	for i := range paras {
		paras[i] = fmt.Sprintf("Paragraph %d about %s covers one idea in enough words to fill space here.", i+1, seed)
	}
	return strings.Join(paras, "\n\n")
}

// flakySummarizer wraps the local provider and fails chunk calls whose text contains failOn
type flakySummarizer struct {
	mu        sync.Mutex
	local     *summarizer.LocalProvider
	failOn    string
	failMerge bool
	calls     int
	merges    int
}

func newFlaky(failOn string) *flakySummarizer {
	local, _ := summarizer.NewLocalProvider(nil)
	return &flakySummarizer{local: local, failOn: failOn}
}

func (f *flakySummarizer) Summarize(ctx context.Context, req summarizer.Request) (*types.SummaryResult, error) {
	f.mu.Lock()
	f.calls++
	if req.Context.Mode == summarizer.ModeMerge {
		f.merges++
	}
	failMerge := f.failMerge
	f.mu.Unlock()
	if failMerge && req.Context.Mode == summarizer.ModeMerge {
		return nil, fmt.Errorf("%w: 400 bad request", summarizer.ErrProviderFailed)
	}
	if f.failOn != "" && req.Context.Mode == summarizer.ModeChunk && strings.Contains(req.Text, f.failOn) {
		return nil, summarizer.ErrProviderFailed
	}
	return f.local.Summarize(ctx, req)
}

func (f *flakySummarizer) Provider() string { return "flaky" }
func (f *flakySummarizer) Model() string    { return "flaky" }
func (f *flakySummarizer) Close() error     { return nil }

func TestChunkStage_ProcessBatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Title: "A", Text: article(6, "go")})
	require.NoError(t, err)

	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)
	result, err := stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Succeeded)

	got, err := store.GetContentItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemChunked, got.Status)
	assert.Equal(t, types.EstimateTokens(got.RawText), got.TotalTokens)
	assert.Empty(t, got.ClaimToken)

	chunks, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, types.EstimateTokens(c.ChunkText), c.TokenCount)
		assert.Equal(t, types.KindArticle, c.Kind)
	}

	groups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, groups, (len(chunks)+1)/2)
	for i, g := range groups {
		assert.Equal(t, i, g.GroupIndex)
		assert.Equal(t, chunks[2*i].ID, g.ChunkIDs[0])
		assert.Equal(t, types.GroupPending, g.Status)
	}

	// Nothing left to claim
	result, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Claimed)
}

func TestChunkStage_IdempotentRechunk(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()
	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Text: article(6, "go")})
	require.NoError(t, err)
	_, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)

	firstChunks, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	firstGroups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	require.NoError(t, store.UpdateChunkGroupStatus(ctx, firstGroups[0].ID, types.GroupSummarized))

	// Force a second pass over unchanged text
	require.NoError(t, store.UpdateContentItemStatus(ctx, item.ID, "", types.ItemPending))
	_, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)

	secondChunks, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	secondGroups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)

	require.Equal(t, len(firstChunks), len(secondChunks))
	for i := range firstChunks {
		assert.Equal(t, firstChunks[i].ID, secondChunks[i].ID)
		assert.Equal(t, firstChunks[i].ChunkText, secondChunks[i].ChunkText)
	}
	require.Equal(t, len(firstGroups), len(secondGroups))
	for i := range firstGroups {
		assert.Equal(t, firstGroups[i].ID, secondGroups[i].ID)
		assert.Equal(t, firstGroups[i].ChunkIDs, secondGroups[i].ChunkIDs)
	}
	assert.Equal(t, types.GroupSummarized, secondGroups[0].Status, "unchanged group keeps its status")
}

func TestChunkStage_ShrinkingTextRemovesStaleRows(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()
	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Text: article(8, "go")})
	require.NoError(t, err)
	_, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)
	before, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)

	again, err := Ingest(ctx, store, types.Document{URL: item.URL, Text: article(2, "rust")})
	require.NoError(t, err)
	assert.Equal(t, types.ItemPending, again.Status)
	_, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)

	after, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	assert.Less(t, len(after), len(before))
	for i, c := range after {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Contains(t, c.ChunkText, "rust")
	}

	groups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, groups, (len(after)+1)/2)
}

func TestChunkStage_BlankTextFails(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()

	// Bypass Ingest validation to store an unusable item
	item := &storage.ContentItem{URL: "https://example.com/blank", RawText: " \n\t ", Kind: types.KindArticle}
	require.NoError(t, store.UpsertContentItem(ctx, item))

	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)
	result, err := stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], ErrNoChunks.Error())

	got, err := store.GetContentItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemFailed, got.Status)
}

func TestChunkStage_FailureDoesNotAffectSiblings(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()

	require.NoError(t, store.UpsertContentItem(ctx, &storage.ContentItem{URL: "https://example.com/blank", RawText: "  ", Kind: types.KindArticle}))
	good, err := Ingest(ctx, store, types.Document{URL: "https://example.com/good", Text: article(3, "go")})
	require.NoError(t, err)

	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)
	result, err := stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Claimed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	got, err := store.GetContentItem(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemChunked, got.Status)
}

func TestChunkStage_ReingestDuringClaim(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()
	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Text: article(6, "old")})
	require.NoError(t, err)
	claimed, err := store.ClaimContentItems(ctx, types.ItemPending, 1, time.Hour)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// New text arrives while the worker still holds the old claim
	_, err = Ingest(ctx, store, types.Document{URL: item.URL, Text: article(6, "new")})
	require.NoError(t, err)

	_, _, err = stage.processItem(ctx, claimed[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrClaimLost)

	got, err := store.GetContentItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemPending, got.Status)
	assert.Empty(t, got.ClaimToken)
	chunks, err := store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks, "stale chunks are rolled back")

	result, err := stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Succeeded)

	chunks, err = store.ListChunks(ctx, item.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Contains(t, c.ChunkText, "new")
		assert.NotContains(t, c.ChunkText, "old")
	}
}

func TestChunkStage_RechunkRetriesFailedGroup(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := testConfig()
	stage := NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease)

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Text: article(6, "go")})
	require.NoError(t, err)
	_, err = stage.ProcessBatch(ctx)
	require.NoError(t, err)

	groups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(groups), 2)
	require.NoError(t, store.UpdateChunkGroupStatus(ctx, groups[0].ID, types.GroupFailed))
	require.NoError(t, store.UpdateChunkGroupStatus(ctx, groups[1].ID, types.GroupSummarized))

	require.NoError(t, store.UpdateContentItemStatus(ctx, item.ID, "", types.ItemPending))
	result, err := stage.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	after, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, len(groups), len(after))
	assert.Equal(t, groups[0].ID, after[0].ID)
	assert.Equal(t, types.GroupPending, after[0].Status)
	assert.Equal(t, types.GroupSummarized, after[1].Status)
}

func TestPipeline_Drain(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	summ := newFlaky("")
	p := New(store, summ, testConfig())

	long, err := Ingest(ctx, store, types.Document{URL: "https://example.com/long", Title: "Long", Text: article(8, "go")})
	require.NoError(t, err)
	short, err := Ingest(ctx, store, types.Document{URL: "https://example.com/short", Title: "Short", Text: "One short paragraph. Nothing more to say."})
	require.NoError(t, err)

	total, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total.Claimed)
	assert.Equal(t, 4, total.Succeeded)
	assert.Equal(t, 0, total.Failed)

	for _, item := range []*storage.ContentItem{long, short} {
		got, err := store.GetContentItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ItemSummarized, got.Status)

		sum, err := store.GetSummaryByURL(ctx, item.URL)
		require.NoError(t, err)
		assert.NotEmpty(t, sum.Summary)
		assert.False(t, sum.IsPartial)
	}

	// The short item has one group, so its summary is promoted
	sum, err := store.GetSummaryByURL(ctx, short.URL)
	require.NoError(t, err)
	assert.NotNil(t, sum.ChunkGroupID)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Items[types.ItemSummarized])
	assert.Equal(t, 2, status.SummariesCount)
	assert.Equal(t, 0, status.PendingPartials)
}

func TestPipeline_MergeFailureWaitsForLease(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	summ := newFlaky("")
	summ.failMerge = true
	p := New(store, summ, testConfig())

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/long", Title: "Long", Text: article(8, "merge")})
	require.NoError(t, err)

	for pass := 0; pass < 4; pass++ {
		chunked, summarized, err := p.RunOnce(ctx)
		require.NoError(t, err)
		if pass == 0 {
			assert.Equal(t, 1, chunked.Claimed)
			assert.Equal(t, 1, summarized.Claimed)
			assert.Equal(t, 1, summarized.Deferred)
			assert.Equal(t, testConfig().IdleBackoff, p.summaries.nextDelay(summarized, nil))
			continue
		}
		assert.Equal(t, 0, summarized.Claimed, "pass %d", pass)
	}

	summ.mu.Lock()
	assert.Equal(t, 1, summ.merges, "merge is not retried while the lease is live")
	summ.mu.Unlock()

	got, err := store.GetContentItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemChunked, got.Status)
	assert.NotEmpty(t, got.ClaimToken)

	// Drain returns instead of spinning on the held item
	total, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total.Claimed)
}

func TestPipeline_PartialGroupFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	summ := newFlaky("Paragraph 8 ")
	p := New(store, summ, testConfig())

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com/long", Text: article(8, "go")})
	require.NoError(t, err)

	_, err = p.Drain(ctx)
	require.NoError(t, err)

	groups, err := store.ListChunkGroups(ctx, item.ID)
	require.NoError(t, err)
	failed := 0
	for _, g := range groups {
		if g.Status == types.GroupFailed {
			failed++
		}
	}
	require.Greater(t, failed, 0)
	require.Less(t, failed, len(groups))

	sum, err := store.GetSummaryByURL(ctx, item.URL)
	require.NoError(t, err)
	assert.True(t, sum.IsPartial)
}

func TestPipeline_Run(t *testing.T) {
	store := setupStore(t)
	cfg := testConfig()
	cfg.ReaperSchedule = "@every 1s"
	p := New(store, newFlaky(""), cfg)

	item, err := Ingest(context.Background(), store, types.Document{URL: "https://example.com/a", Text: article(4, "go")})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := store.GetContentItem(context.Background(), item.ID)
		return err == nil && got.Status == types.ItemSummarized
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipeline_RunInvalidSchedule(t *testing.T) {
	store := setupStore(t)
	cfg := testConfig()
	cfg.ReaperSchedule = "not a schedule"
	p := New(store, newFlaky(""), cfg)

	err := p.Run(context.Background())
	assert.Error(t, err)
}

func TestPipeline_ReapExpiredClaims(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := New(store, newFlaky(""), testConfig())

	_, err := Ingest(ctx, store, types.Document{URL: "https://example.com/a", Text: "text"})
	require.NoError(t, err)
	_, err = store.ClaimContentItems(ctx, types.ItemPending, 1, -time.Second)
	require.NoError(t, err)

	n, err := p.ReapExpiredClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetVerbose_AfterNew(t *testing.T) {
	defer SetVerbose(false)
	SetVerbose(false)

	p := New(setupStore(t), newFlaky(""), testConfig())
	stage, ok := p.summaries.stage.(*SummarizeStage)
	require.True(t, ok)
	require.NotNil(t, stage.aggregator.Verbose)
	assert.False(t, stage.aggregator.Verbose())

	SetVerbose(true)
	assert.True(t, stage.aggregator.Verbose(), "toggle reaches a pipeline built earlier")
}

func TestIngest_Validation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := Ingest(ctx, store, types.Document{Text: "x"})
	assert.ErrorIs(t, err, types.ErrMissingURL)

	_, err = Ingest(ctx, store, types.Document{URL: "https://example.com", Text: "  "})
	assert.ErrorIs(t, err, types.ErrEmptyContent)

	_, err = Ingest(ctx, store, types.Document{URL: "https://example.com", Text: "x", Kind: "video"})
	assert.ErrorIs(t, err, types.ErrInvalidKind)

	item, err := Ingest(ctx, store, types.Document{URL: "https://example.com", Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, types.KindArticle, item.Kind)
	assert.Equal(t, types.ItemPending, item.Status)
}
