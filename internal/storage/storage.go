package storage

import (
	"context"
	"time"

	"github.com/dshills/crawldigest/pkg/types"
)

// Storage defines the interface for the pipeline state store.
// Every write is a keyed upsert so repeated processing of the same item is safe.
type Storage interface {
	// Content item operations
	UpsertContentItem(ctx context.Context, item *ContentItem) error
	GetContentItem(ctx context.Context, id int64) (*ContentItem, error)
	GetContentItemByURL(ctx context.Context, url string) (*ContentItem, error)
	ClaimContentItems(ctx context.Context, status types.ItemStatus, limit int, lease time.Duration) ([]*ContentItem, error)
	UpdateContentItemStatus(ctx context.Context, id int64, claimToken string, status types.ItemStatus) error
	UpdateContentItemTokens(ctx context.Context, id int64, totalTokens int) error
	ReleaseClaim(ctx context.Context, id int64, claimToken string) error
	ReleaseExpiredClaims(ctx context.Context) (int, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	ListChunks(ctx context.Context, contentItemID int64) ([]*Chunk, error)
	DeleteChunksFrom(ctx context.Context, contentItemID int64, fromIndex int) (int, error)

	// Chunk group operations
	UpsertChunkGroup(ctx context.Context, group *ChunkGroup) error
	ListChunkGroups(ctx context.Context, contentItemID int64) ([]*ChunkGroup, error)
	UpdateChunkGroupStatus(ctx context.Context, groupID int64, status types.GroupStatus) error
	DeleteChunkGroupsFrom(ctx context.Context, contentItemID int64, fromIndex int) (int, error)

	// Partial summary operations
	UpsertPartialSummary(ctx context.Context, partial *PartialSummary) error
	ListPartialSummaries(ctx context.Context, contentItemID int64) ([]*PartialSummary, error)
	DeletePartialSummary(ctx context.Context, contentItemID int64, groupIndex int) error
	DeletePartialSummaries(ctx context.Context, contentItemID int64) error

	// Final summary operations
	UpsertSummary(ctx context.Context, summary *Summary) error
	GetSummaryByURL(ctx context.Context, url string) (*Summary, error)
	ListSummaries(ctx context.Context, limit int) ([]*Summary, error)

	// Status operations
	GetStatus(ctx context.Context) (*PipelineStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// ContentItem is one crawled document tracked by the pipeline
type ContentItem struct {
	ID           int64
	URL          string
	Title        string
	RawText      string
	CodeSnippets []string
	Kind         types.ContentKind
	TotalTokens  int
	Status       types.ItemStatus
	ClaimToken   string     // Empty when unclaimed
	ClaimedUntil *time.Time // Nullable
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk represents a persisted slice of a content item's text
type Chunk struct {
	ID            int64
	ContentItemID int64
	ChunkIndex    int
	ChunkText     string
	TokenCount    int
	Kind          types.ContentKind
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChunkGroup represents a persisted window of chunks summarized together
type ChunkGroup struct {
	ID             int64
	ContentItemID  int64
	GroupIndex     int
	ChunkIDs       []int64
	CombinedText   string
	CombinedTokens int
	Status         types.GroupStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PartialSummary is the durable summary of one chunk group, kept until the
// document's final summary is written
type PartialSummary struct {
	ID            int64
	ContentItemID int64
	GroupIndex    int
	ChunkGroupID  int64
	Result        types.SummaryResult
	CreatedAt     time.Time
}

// Summary is the final, document-level summary keyed by url
type Summary struct {
	ID            int64
	URL           string
	Title         string
	OriginalText  string
	Summary       string
	KeyPoints     []string
	CodeSnippets  []string
	Kind          types.ContentKind
	Sentiment     string
	Category      string
	ContentItemID int64
	ChunkGroupID  *int64 // Nullable - only set when promoted from a single group
	IsPartial     bool   // Some groups failed to summarize
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PipelineStatus contains counts describing pipeline progress
type PipelineStatus struct {
	Items           map[types.ItemStatus]int
	Groups          map[types.GroupStatus]int
	TotalItems      int
	TotalTokens     int
	ChunksCount     int
	ChunkTokens     int
	PendingPartials int
	SummariesCount  int
	ClaimedItems    int
	Health          HealthStatus
}

// HealthStatus represents the health of the store
type HealthStatus struct {
	DatabaseAccessible bool
	SchemaVersion      string
}

// NewContentItem builds a pending content item from an ingested document
func NewContentItem(doc types.Document) *ContentItem {
	snippets := doc.CodeSnippets
	if snippets == nil {
		snippets = []string{}
	}
	return &ContentItem{
		URL:          doc.URL,
		Title:        doc.Title,
		RawText:      doc.Text,
		CodeSnippets: snippets,
		Kind:         doc.Kind,
		TotalTokens:  types.EstimateTokens(doc.Text),
		Status:       types.ItemPending,
	}
}

// ToTypesChunk converts a storage Chunk to types.Chunk
func (c *Chunk) ToTypesChunk() *types.Chunk {
	return &types.Chunk{
		ID:            c.ID,
		ContentItemID: c.ContentItemID,
		Index:         c.ChunkIndex,
		Text:          c.ChunkText,
		TokenCount:    c.TokenCount,
		Kind:          c.Kind,
	}
}

// FromTypesChunk converts a types.Chunk to a storage Chunk
func FromTypesChunk(c *types.Chunk, contentItemID int64) *Chunk {
	return &Chunk{
		ID:            c.ID,
		ContentItemID: contentItemID,
		ChunkIndex:    c.Index,
		ChunkText:     c.Text,
		TokenCount:    c.TokenCount,
		Kind:          c.Kind,
	}
}

// ToTypesGroup converts a storage ChunkGroup to types.ChunkGroup
func (g *ChunkGroup) ToTypesGroup() *types.ChunkGroup {
	return &types.ChunkGroup{
		ID:             g.ID,
		ContentItemID:  g.ContentItemID,
		Index:          g.GroupIndex,
		ChunkIDs:       g.ChunkIDs,
		CombinedText:   g.CombinedText,
		CombinedTokens: g.CombinedTokens,
		Status:         g.Status,
	}
}

// FromTypesGroup converts a types.ChunkGroup to a storage ChunkGroup
func FromTypesGroup(g *types.ChunkGroup) *ChunkGroup {
	return &ChunkGroup{
		ID:             g.ID,
		ContentItemID:  g.ContentItemID,
		GroupIndex:     g.Index,
		ChunkIDs:       g.ChunkIDs,
		CombinedText:   g.CombinedText,
		CombinedTokens: g.CombinedTokens,
		Status:         g.Status,
	}
}
