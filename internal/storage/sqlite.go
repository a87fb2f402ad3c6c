package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/crawldigest/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrClaimLost is returned when a write is attempted with a claim token
	// that no longer owns the item
	ErrClaimLost = errors.New("claim lost")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	queries
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
// busyTimeoutMs is how long a connection waits on a locked database
const busyTimeoutMs = "5000"

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, driverDSN(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{queries: queries{q: db}, db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{queries: queries{q: tx}, tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction. Its operations run on the transaction,
// never on the pool, since the pool holds a single connection.
type sqliteTx struct {
	queries
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions
func (t *sqliteTx) Close() error {
	return nil
}

// BeginTx is not supported for nested transactions
func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// queries holds every operation shared by the database and its transactions
type queries struct {
	q querier
}

const contentItemColumns = `id, url, title, raw_text, code_snippets, content_kind, total_tokens,
	status, claim_token, claimed_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContentItem(row rowScanner) (*ContentItem, error) {
	var item ContentItem
	var snippets string
	var claimToken sql.NullString
	var claimedUntil sql.NullInt64
	err := row.Scan(
		&item.ID, &item.URL, &item.Title, &item.RawText, &snippets, &item.Kind,
		&item.TotalTokens, &item.Status, &claimToken, &claimedUntil,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(snippets, &item.CodeSnippets); err != nil {
		return nil, fmt.Errorf("failed to decode code snippets: %w", err)
	}
	if claimToken.Valid {
		item.ClaimToken = claimToken.String
	}
	if claimedUntil.Valid {
		t := time.UnixMilli(claimedUntil.Int64)
		item.ClaimedUntil = &t
	}
	return &item, nil
}

// Content item operations

// UpsertContentItem inserts or updates an item by url. Changed text resets
// the item to its incoming status and drops any claim on it, so a worker
// still holding the old claim gets ErrClaimLost; unchanged text keeps the
// stored status and claim.
func (s *queries) UpsertContentItem(ctx context.Context, item *ContentItem) error {
	query := `
		INSERT INTO content_items (url, title, raw_text, code_snippets, content_kind, total_tokens, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			code_snippets = excluded.code_snippets,
			content_kind = excluded.content_kind,
			total_tokens = excluded.total_tokens,
			status = CASE WHEN content_items.raw_text = excluded.raw_text
				THEN content_items.status ELSE excluded.status END,
			claim_token = CASE WHEN content_items.raw_text = excluded.raw_text
				THEN content_items.claim_token ELSE NULL END,
			claimed_until = CASE WHEN content_items.raw_text = excluded.raw_text
				THEN content_items.claimed_until ELSE NULL END,
			raw_text = excluded.raw_text,
			updated_at = excluded.updated_at
		RETURNING id, status, created_at
	`
	if item.Status == "" {
		item.Status = types.ItemPending
	}
	if item.Kind == "" {
		item.Kind = types.KindArticle
	}
	snippets, err := encodeJSON(item.CodeSnippets)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.q.QueryRowContext(ctx, query,
		item.URL, item.Title, item.RawText, snippets, string(item.Kind), item.TotalTokens,
		string(item.Status), now, now).Scan(&item.ID, &item.Status, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert content item: %w", err)
	}
	item.UpdatedAt = now
	return nil
}

func (s *queries) GetContentItem(ctx context.Context, id int64) (*ContentItem, error) {
	query := `SELECT ` + contentItemColumns + ` FROM content_items WHERE id = ?`
	item, err := scanContentItem(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

func (s *queries) GetContentItemByURL(ctx context.Context, url string) (*ContentItem, error) {
	query := `SELECT ` + contentItemColumns + ` FROM content_items WHERE url = ?`
	item, err := scanContentItem(s.q.QueryRowContext(ctx, query, url))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return item, err
}

// ClaimContentItems atomically leases up to limit unclaimed items in the given
// status, oldest first. Items whose lease expired are claimable again.
func (s *queries) ClaimContentItems(ctx context.Context, status types.ItemStatus, limit int, lease time.Duration) ([]*ContentItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		UPDATE content_items
		SET claim_token = ?, claimed_until = ?
		WHERE id IN (
			SELECT id FROM content_items
			WHERE status = ? AND (claim_token IS NULL OR claimed_until IS NULL OR claimed_until < ?)
			ORDER BY created_at, id
			LIMIT ?
		)
		RETURNING ` + contentItemColumns

	now := time.Now()
	token := uuid.NewString()
	rows, err := s.q.QueryContext(ctx, query,
		token, now.Add(lease).UnixMilli(), string(status), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// UpdateContentItemStatus sets the item status and releases its claim. An
// empty claim token skips the ownership check.
func (s *queries) UpdateContentItemStatus(ctx context.Context, id int64, claimToken string, status types.ItemStatus) error {
	query := `
		UPDATE content_items
		SET status = ?, claim_token = NULL, claimed_until = NULL, updated_at = ?
		WHERE id = ? AND (? = '' OR claim_token = ?)
	`
	result, err := s.q.ExecContext(ctx, query, string(status), time.Now(), id, claimToken, claimToken)
	if err != nil {
		return fmt.Errorf("failed to update content item status: %w", err)
	}
	return s.checkClaimed(ctx, result, id)
}

func (s *queries) UpdateContentItemTokens(ctx context.Context, id int64, totalTokens int) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE content_items SET total_tokens = ?, updated_at = ? WHERE id = ?",
		totalTokens, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update content item tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseClaim clears the claim without changing the item status
func (s *queries) ReleaseClaim(ctx context.Context, id int64, claimToken string) error {
	query := `
		UPDATE content_items
		SET claim_token = NULL, claimed_until = NULL
		WHERE id = ? AND (? = '' OR claim_token = ?)
	`
	result, err := s.q.ExecContext(ctx, query, id, claimToken, claimToken)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return s.checkClaimed(ctx, result, id)
}

// checkClaimed distinguishes a missing item from a claim owned by someone else
func (s *queries) checkClaimed(ctx context.Context, result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.q.QueryRowContext(ctx, "SELECT 1 FROM content_items WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrClaimLost
}

// ReleaseExpiredClaims clears every claim whose lease has passed
func (s *queries) ReleaseExpiredClaims(ctx context.Context) (int, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE content_items
		SET claim_token = NULL, claimed_until = NULL
		WHERE claim_token IS NOT NULL AND claimed_until < ?
	`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to release expired claims: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Chunk operations

func (s *queries) UpsertChunk(ctx context.Context, chunk *Chunk) error {
	query := `
		INSERT INTO chunks (content_item_id, chunk_index, chunk_text, token_count, content_kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_item_id, chunk_index) DO UPDATE SET
			chunk_text = excluded.chunk_text,
			token_count = excluded.token_count,
			content_kind = excluded.content_kind,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := s.q.QueryRowContext(ctx, query,
		chunk.ContentItemID, chunk.ChunkIndex, chunk.ChunkText, chunk.TokenCount,
		string(chunk.Kind), now, now).Scan(&chunk.ID, &chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}
	chunk.UpdatedAt = now
	return nil
}

func (s *queries) ListChunks(ctx context.Context, contentItemID int64) ([]*Chunk, error) {
	query := `
		SELECT id, content_item_id, chunk_index, chunk_text, token_count, content_kind, created_at, updated_at
		FROM chunks
		WHERE content_item_id = ?
		ORDER BY chunk_index
	`
	rows, err := s.q.QueryContext(ctx, query, contentItemID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.ContentItemID, &c.ChunkIndex, &c.ChunkText,
			&c.TokenCount, &c.Kind, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// DeleteChunksFrom removes chunks at or beyond fromIndex, left over from a
// previous chunking that produced more pieces
func (s *queries) DeleteChunksFrom(ctx context.Context, contentItemID int64, fromIndex int) (int, error) {
	result, err := s.q.ExecContext(ctx,
		"DELETE FROM chunks WHERE content_item_id = ? AND chunk_index >= ?",
		contentItemID, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Chunk group operations

// UpsertChunkGroup inserts or updates a group by (item, index). The stored
// status survives when the combined text is unchanged and resets to pending
// otherwise. group.Status is set to the resulting status.
func (s *queries) UpsertChunkGroup(ctx context.Context, group *ChunkGroup) error {
	query := `
		INSERT INTO chunk_groups (content_item_id, group_index, chunk_ids, combined_text, combined_tokens, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_item_id, group_index) DO UPDATE SET
			chunk_ids = excluded.chunk_ids,
			combined_tokens = excluded.combined_tokens,
			status = CASE WHEN chunk_groups.combined_text = excluded.combined_text
				THEN chunk_groups.status ELSE 'pending' END,
			combined_text = excluded.combined_text,
			updated_at = excluded.updated_at
		RETURNING id, status, created_at
	`
	if group.Status == "" {
		group.Status = types.GroupPending
	}
	ids, err := encodeJSON(group.ChunkIDs)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.q.QueryRowContext(ctx, query,
		group.ContentItemID, group.GroupIndex, ids, group.CombinedText,
		group.CombinedTokens, string(group.Status), now, now).Scan(&group.ID, &group.Status, &group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk group: %w", err)
	}
	group.UpdatedAt = now
	return nil
}

func (s *queries) ListChunkGroups(ctx context.Context, contentItemID int64) ([]*ChunkGroup, error) {
	query := `
		SELECT id, content_item_id, group_index, chunk_ids, combined_text, combined_tokens, status, created_at, updated_at
		FROM chunk_groups
		WHERE content_item_id = ?
		ORDER BY group_index
	`
	rows, err := s.q.QueryContext(ctx, query, contentItemID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []*ChunkGroup
	for rows.Next() {
		var g ChunkGroup
		var ids string
		if err := rows.Scan(&g.ID, &g.ContentItemID, &g.GroupIndex, &ids, &g.CombinedText,
			&g.CombinedTokens, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(ids, &g.ChunkIDs); err != nil {
			return nil, fmt.Errorf("failed to decode chunk ids: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

func (s *queries) UpdateChunkGroupStatus(ctx context.Context, groupID int64, status types.GroupStatus) error {
	result, err := s.q.ExecContext(ctx,
		"UPDATE chunk_groups SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update chunk group status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *queries) DeleteChunkGroupsFrom(ctx context.Context, contentItemID int64, fromIndex int) (int, error) {
	result, err := s.q.ExecContext(ctx,
		"DELETE FROM chunk_groups WHERE content_item_id = ? AND group_index >= ?",
		contentItemID, fromIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunk groups: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Partial summary operations

func (s *queries) UpsertPartialSummary(ctx context.Context, partial *PartialSummary) error {
	query := `
		INSERT INTO partial_summaries (content_item_id, group_index, chunk_group_id, summary, key_points, category, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_item_id, group_index) DO UPDATE SET
			chunk_group_id = excluded.chunk_group_id,
			summary = excluded.summary,
			key_points = excluded.key_points,
			category = excluded.category,
			sentiment = excluded.sentiment
		RETURNING id, created_at
	`
	keyPoints, err := encodeJSON(partial.Result.KeyPoints)
	if err != nil {
		return err
	}
	err = s.q.QueryRowContext(ctx, query,
		partial.ContentItemID, partial.GroupIndex, partial.ChunkGroupID,
		partial.Result.Summary, keyPoints, partial.Result.Category, partial.Result.Sentiment,
		time.Now()).Scan(&partial.ID, &partial.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert partial summary: %w", err)
	}
	return nil
}

func (s *queries) ListPartialSummaries(ctx context.Context, contentItemID int64) ([]*PartialSummary, error) {
	query := `
		SELECT id, content_item_id, group_index, chunk_group_id, summary, key_points, category, sentiment, created_at
		FROM partial_summaries
		WHERE content_item_id = ?
		ORDER BY group_index
	`
	rows, err := s.q.QueryContext(ctx, query, contentItemID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var partials []*PartialSummary
	for rows.Next() {
		var p PartialSummary
		var keyPoints string
		if err := rows.Scan(&p.ID, &p.ContentItemID, &p.GroupIndex, &p.ChunkGroupID,
			&p.Result.Summary, &keyPoints, &p.Result.Category, &p.Result.Sentiment,
			&p.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeJSON(keyPoints, &p.Result.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points: %w", err)
		}
		partials = append(partials, &p)
	}
	return partials, rows.Err()
}

func (s *queries) DeletePartialSummary(ctx context.Context, contentItemID int64, groupIndex int) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM partial_summaries WHERE content_item_id = ? AND group_index = ?",
		contentItemID, groupIndex)
	if err != nil {
		return fmt.Errorf("failed to delete partial summary: %w", err)
	}
	return nil
}

func (s *queries) DeletePartialSummaries(ctx context.Context, contentItemID int64) error {
	_, err := s.q.ExecContext(ctx, "DELETE FROM partial_summaries WHERE content_item_id = ?", contentItemID)
	if err != nil {
		return fmt.Errorf("failed to delete partial summaries: %w", err)
	}
	return nil
}

// Final summary operations

func (s *queries) UpsertSummary(ctx context.Context, summary *Summary) error {
	query := `
		INSERT INTO summaries (url, title, original_text, summary, key_points, code_snippets, content_kind,
		                       sentiment, category, content_item_id, chunk_group_id, is_partial, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			original_text = excluded.original_text,
			summary = excluded.summary,
			key_points = excluded.key_points,
			code_snippets = excluded.code_snippets,
			content_kind = excluded.content_kind,
			sentiment = excluded.sentiment,
			category = excluded.category,
			content_item_id = excluded.content_item_id,
			chunk_group_id = excluded.chunk_group_id,
			is_partial = excluded.is_partial,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	keyPoints, err := encodeJSON(summary.KeyPoints)
	if err != nil {
		return err
	}
	snippets, err := encodeJSON(summary.CodeSnippets)
	if err != nil {
		return err
	}

	var groupID sql.NullInt64
	if summary.ChunkGroupID != nil {
		groupID = sql.NullInt64{Int64: *summary.ChunkGroupID, Valid: true}
	}

	now := time.Now()
	err = s.q.QueryRowContext(ctx, query,
		summary.URL, summary.Title, summary.OriginalText, summary.Summary, keyPoints, snippets,
		string(summary.Kind), summary.Sentiment, summary.Category, summary.ContentItemID, groupID,
		summary.IsPartial, now, now).Scan(&summary.ID, &summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	summary.UpdatedAt = now
	return nil
}

const summaryColumns = `id, url, title, original_text, summary, key_points, code_snippets, content_kind,
	sentiment, category, content_item_id, chunk_group_id, is_partial, created_at, updated_at`

func scanSummary(row rowScanner) (*Summary, error) {
	var sum Summary
	var keyPoints, snippets string
	var groupID sql.NullInt64
	err := row.Scan(&sum.ID, &sum.URL, &sum.Title, &sum.OriginalText, &sum.Summary,
		&keyPoints, &snippets, &sum.Kind, &sum.Sentiment, &sum.Category,
		&sum.ContentItemID, &groupID, &sum.IsPartial, &sum.CreatedAt, &sum.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(keyPoints, &sum.KeyPoints); err != nil {
		return nil, fmt.Errorf("failed to decode key points: %w", err)
	}
	if err := decodeJSON(snippets, &sum.CodeSnippets); err != nil {
		return nil, fmt.Errorf("failed to decode code snippets: %w", err)
	}
	if groupID.Valid {
		id := groupID.Int64
		sum.ChunkGroupID = &id
	}
	return &sum, nil
}

func (s *queries) GetSummaryByURL(ctx context.Context, url string) (*Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE url = ?`
	sum, err := scanSummary(s.q.QueryRowContext(ctx, query, url))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sum, err
}

// ListSummaries returns the most recently updated summaries first
func (s *queries) ListSummaries(ctx context.Context, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + summaryColumns + ` FROM summaries ORDER BY updated_at DESC, id DESC LIMIT ?`
	rows, err := s.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var summaries []*Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Status operations

func (s *queries) GetStatus(ctx context.Context) (*PipelineStatus, error) {
	status := &PipelineStatus{
		Items:  make(map[types.ItemStatus]int),
		Groups: make(map[types.GroupStatus]int),
	}

	rows, err := s.q.QueryContext(ctx,
		"SELECT status, COUNT(*), COALESCE(SUM(total_tokens), 0) FROM content_items GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count content items: %w", err)
	}
	for rows.Next() {
		var st types.ItemStatus
		var count, tokens int
		if err := rows.Scan(&st, &count, &tokens); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.Items[st] = count
		status.TotalItems += count
		status.TotalTokens += tokens
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.q.QueryContext(ctx, "SELECT status, COUNT(*) FROM chunk_groups GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count chunk groups: %w", err)
	}
	for rows.Next() {
		var st types.GroupStatus
		var count int
		if err := rows.Scan(&st, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.Groups[st] = count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	err = s.q.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(token_count), 0) FROM chunks").Scan(&status.ChunksCount, &status.ChunkTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM partial_summaries").Scan(&status.PendingPartials); err != nil {
		return nil, fmt.Errorf("failed to count partial summaries: %w", err)
	}

	if err := s.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&status.SummariesCount); err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}

	err = s.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM content_items WHERE claim_token IS NOT NULL AND claimed_until >= ?",
		time.Now().UnixMilli()).Scan(&status.ClaimedItems)
	if err != nil {
		return nil, fmt.Errorf("failed to count claimed items: %w", err)
	}

	status.Health.DatabaseAccessible = true
	status.Health.SchemaVersion = CurrentSchemaVersion
	return status, nil
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func decodeJSON(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Tx      = (*sqliteTx)(nil)
)
