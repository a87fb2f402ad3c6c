package pipeline

import (
	"context"
	"fmt"

	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/pkg/types"
)

// Ingest validates doc and stores it as a pending content item. Ingesting
// a known url with different text queues it for reprocessing.
func Ingest(ctx context.Context, store storage.Storage, doc types.Document) (*storage.ContentItem, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	item := storage.NewContentItem(doc)
	if err := store.UpsertContentItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to ingest %s: %w", doc.URL, err)
	}
	return item, nil
}
