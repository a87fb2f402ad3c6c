package summarizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/crawldigest/pkg/types"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("summarization provider failed")
	ErrUnsupported       = errors.New("unsupported provider")
	ErrNoProviderEnabled = errors.New("no summarization provider configured")
	ErrMalformedOutput   = errors.New("malformed summarizer output")
)

const (
	// FallbackSummaryRunes is how much raw text a fallback summary keeps
	FallbackSummaryRunes = 500
	// FallbackKeyPoint is the placeholder key point of a fallback summary
	FallbackKeyPoint = "Summary unavailable - content could not be analyzed"
)

// Mode selects the prompt used for a request
type Mode string

const (
	// ModeChunk summarizes one chunk group of a document
	ModeChunk Mode = "chunk"
	// ModeMerge combines partial summaries into one document summary
	ModeMerge Mode = "merge"
)

// RequestContext describes where the text sits within its document
type RequestContext struct {
	Title     string
	Kind      types.ContentKind
	Part      int // 1-based
	Total     int
	Mode      Mode
	KeyPoints []string // Pooled key points, merge mode only
}

// Request is one summarization call
type Request struct {
	Text    string
	Context RequestContext
}

// Summarizer turns text into a structured summary result.
// Implementations must be safe for concurrent use.
type Summarizer interface {
	// Summarize returns a summary for the request. Output that cannot be
	// parsed degrades into FallbackResult rather than an error.
	Summarize(ctx context.Context, req Request) (*types.SummaryResult, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the summarizer
	Close() error
}

// ValidateRequest validates a summarization request
func ValidateRequest(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// FallbackResult is the best-effort result used when a provider's output cannot be parsed
func FallbackResult(text string) *types.SummaryResult {
	runes := []rune(strings.TrimSpace(text))
	summary := string(runes)
	if len(runes) > FallbackSummaryRunes {
		summary = string(runes[:FallbackSummaryRunes]) + "..."
	}
	return &types.SummaryResult{
		Summary:   summary,
		KeyPoints: []string{FallbackKeyPoint},
		Category:  types.DefaultCategory,
		Sentiment: types.DefaultSentiment,
	}
}

// ParseResult decodes a provider's JSON reply, tolerating markdown code fences
func ParseResult(body string) (*types.SummaryResult, error) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var result types.SummaryResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	result.Summary = strings.TrimSpace(result.Summary)
	if result.Summary == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformedOutput)
	}

	points := result.KeyPoints[:0]
	for _, p := range result.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	result.KeyPoints = points
	result.Category = strings.ToLower(strings.TrimSpace(result.Category))
	result.Sentiment = strings.ToLower(strings.TrimSpace(result.Sentiment))
	result.Normalize()
	return &result, nil
}

// Cache provides in-memory LRU caching of results by request hash
type Cache struct {
	cache *lru.Cache[string, *types.SummaryResult]
}

// NewCache creates a new result cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 1000
	}
	cache, err := lru.New[string, *types.SummaryResult](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *types.SummaryResult](1000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached result so callers cannot mutate the cache
func (c *Cache) Get(hash string) (*types.SummaryResult, bool) {
	r, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return copyResult(r), true
}

// Set stores a copy of r, so later changes to r do not reach the cache
func (c *Cache) Set(hash string, r *types.SummaryResult) {
	if r == nil {
		return
	}
	c.cache.Add(hash, copyResult(r))
}

func copyResult(r *types.SummaryResult) *types.SummaryResult {
	cp := *r
	cp.KeyPoints = append([]string(nil), r.KeyPoints...)
	return &cp
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// ComputeHash computes the cache key of a request. Position and mode are
// part of the key since they change the prompt.
func ComputeHash(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d/%d\x00", req.Context.Mode, req.Context.Kind, req.Context.Title, req.Context.Part, req.Context.Total)
	for _, kp := range req.Context.KeyPoints {
		fmt.Fprintf(h, "%s\x00", kp)
	}
	h.Write([]byte(req.Text))
	return hex.EncodeToString(h.Sum(nil))
}
