package types

import (
	"fmt"
	"net/url"
	"strings"
)

// ContentKind classifies a crawled document
type ContentKind string

const (
	KindArticle ContentKind = "article"
	KindCode    ContentKind = "code"
	KindMixed   ContentKind = "mixed"
)

// Valid reports whether k is a known content kind
func (k ContentKind) Valid() bool {
	switch k {
	case KindArticle, KindCode, KindMixed:
		return true
	default:
		return false
	}
}

// ParseContentKind converts a string into a ContentKind. An empty string maps to KindArticle.
func ParseContentKind(s string) (ContentKind, error) {
	if s == "" {
		return KindArticle, nil
	}
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// ItemStatus is the lifecycle state of a content item
type ItemStatus string

const (
	ItemPending           ItemStatus = "pending"
	ItemChunked           ItemStatus = "chunked"
	ItemFailed            ItemStatus = "failed"
	ItemSummarized        ItemStatus = "summarized"
	ItemAggregationFailed ItemStatus = "aggregation_failed"
)

// Valid reports whether s is a known item status
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemChunked, ItemFailed, ItemSummarized, ItemAggregationFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no stage will pick up an item in this status again
func (s ItemStatus) IsTerminal() bool {
	return s == ItemFailed || s == ItemSummarized || s == ItemAggregationFailed
}

// GroupStatus is the lifecycle state of a chunk group
type GroupStatus string

const (
	GroupPending    GroupStatus = "pending"
	GroupSummarized GroupStatus = "summarized"
	GroupFailed     GroupStatus = "failed"
)

// Valid reports whether s is a known group status
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupPending, GroupSummarized, GroupFailed:
		return true
	default:
		return false
	}
}

// Document is one crawled page pushed into the pipeline by a source
type Document struct {
	URL          string      `json:"url"`
	Title        string      `json:"title"`
	Text         string      `json:"text"`
	CodeSnippets []string    `json:"code_snippets,omitempty"`
	Kind         ContentKind `json:"content_type"`
}

// Validate checks the document before it is stored
func (d *Document) Validate() error {
	if strings.TrimSpace(d.URL) == "" {
		return ErrMissingURL
	}
	if _, err := url.Parse(d.URL); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingURL, err)
	}
	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyContent
	}
	if d.Kind == "" {
		d.Kind = KindArticle
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}
	return nil
}
