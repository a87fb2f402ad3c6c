// Package storage provides SQLite-based persistence for the summarization pipeline.
//
// The storage layer manages:
//   - Content items (crawled documents and their processing status)
//   - Chunks and chunk groups derived from each item
//   - Partial summaries, one per summarized group
//   - Final summaries keyed by url
//
// # Database Schema
//
// Tables:
//   - content_items: url, text, status, claim lease columns
//   - chunks: UNIQUE(content_item_id, chunk_index)
//   - chunk_groups: UNIQUE(content_item_id, group_index), JSON chunk id list
//   - partial_summaries: UNIQUE(content_item_id, group_index)
//   - summaries: UNIQUE(url)
//   - schema_version: applied migrations
//
// Every write is an INSERT ... ON CONFLICT DO UPDATE keyed on the unique
// columns above, so reprocessing an item overwrites rather than duplicates.
//
// # Claims
//
// Batch selection is a single UPDATE ... RETURNING that stamps a claim
// token and lease expiry on up to N items in a status:
//
//	items, err := db.ClaimContentItems(ctx, types.ItemPending, 10, 10*time.Minute)
//	for _, item := range items {
//	    // ... process ...
//	    err = db.UpdateContentItemStatus(ctx, item.ID, item.ClaimToken, types.ItemChunked)
//	}
//
// Finishing with a token that no longer owns the item returns ErrClaimLost.
// ReleaseExpiredClaims clears leases left behind by crashed workers.
//
// # Transactions
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.UpsertChunk(ctx, chunk)
//	_ = tx.UpsertChunkGroup(ctx, group)
//
//	return tx.Commit()
//
// The pool holds a single connection, so code inside a transaction must use
// the Tx and never the parent storage.
//
// # Build Tags
//
// Pure Go build (default, or purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build ./...
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
package storage
