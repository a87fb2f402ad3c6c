package chunker

import (
	"strings"
	"unicode"

	"github.com/dshills/crawldigest/pkg/types"
)

const (
	// DefaultMaxTokensPerChunk is the soft upper bound on a packed chunk
	DefaultMaxTokensPerChunk = 1200
	// DefaultMinTokensPerChunk is the size a chunk must reach before it may be cut
	DefaultMinTokensPerChunk = 300
	// DefaultOverlapTokens is the tail carried from one chunk into the next
	DefaultOverlapTokens = 100
)

// Config holds the token budgets used when packing chunks.
// MaxCharsPerChunk and OverlapChars are only used by the fixed-width fallback
// and default to the token values times types.CharsPerToken.
type Config struct {
	MaxTokensPerChunk int
	MinTokensPerChunk int
	OverlapTokens     int
	MaxCharsPerChunk  int
	OverlapChars      int
}

// DefaultConfig returns the default packing budgets
func DefaultConfig() Config {
	return Config{
		MaxTokensPerChunk: DefaultMaxTokensPerChunk,
		MinTokensPerChunk: DefaultMinTokensPerChunk,
		OverlapTokens:     DefaultOverlapTokens,
	}
}

// Chunker packs boundary-aligned text segments into overlapping chunks
type Chunker struct {
	cfg Config
}

// New creates a Chunker. Zero fields in cfg take their defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokensPerChunk <= 0 {
		cfg.MaxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	if cfg.MinTokensPerChunk < 0 {
		cfg.MinTokensPerChunk = 0
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	if cfg.MaxCharsPerChunk <= 0 {
		cfg.MaxCharsPerChunk = cfg.MaxTokensPerChunk * types.CharsPerToken
	}
	if cfg.OverlapChars <= 0 {
		cfg.OverlapChars = cfg.OverlapTokens * types.CharsPerToken
	}
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits text into sequentially indexed chunks of the given kind.
// Blank text produces no chunks.
func (c *Chunker) Chunk(text string, kind types.ContentKind) []*types.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	boundaries := FindBoundaries(text)

	var pieces []string
	if hasNaturalBoundary(boundaries) {
		pieces = c.pack(text, boundaries)
	}
	if len(pieces) == 0 {
		pieces = c.fixedWidth(text)
	}

	chunks := make([]*types.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &types.Chunk{
			Index:      i,
			Text:       piece,
			TokenCount: types.EstimateTokens(piece),
			Kind:       kind,
		})
	}
	return chunks
}

// pack walks the boundaries left to right accumulating segments.
// The maximum is soft: a chunk still under the minimum absorbs the next
// segment even when that overflows the maximum.
func (c *Chunker) pack(text string, boundaries []Boundary) []string {
	var (
		pieces  []string
		current string
		last    int
	)

	for _, b := range boundaries {
		if b.Offset <= last {
			continue
		}
		segment := text[last:b.Offset]
		last = b.Offset

		if current == "" || types.EstimateTokens(current+segment) <= c.cfg.MaxTokensPerChunk {
			current += segment
			continue
		}

		if finalized := strings.TrimSpace(current); finalized != "" &&
			types.EstimateTokens(finalized) >= c.cfg.MinTokensPerChunk {
			pieces = append(pieces, finalized)
			current = joinOverlap(c.overlapTail(finalized), segment)
			continue
		}

		current += segment
	}

	if tail := strings.TrimSpace(current); tail != "" {
		pieces = append(pieces, tail)
	}

	return pieces
}

// fixedWidth slides a window of MaxCharsPerChunk runes across text.
// Used when the text has no natural boundary to cut at.
func (c *Chunker) fixedWidth(text string) []string {
	runes := []rune(text)
	width := c.cfg.MaxCharsPerChunk
	step := width - c.cfg.OverlapChars
	if step <= 0 {
		step = width
	}

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return pieces
}

// overlapTail returns the trailing fragment of chunk used to seed the next chunk.
// The fragment is moved forward to a sentence start when one lies in its second half.
func (c *Chunker) overlapTail(chunk string) string {
	budget := c.cfg.OverlapTokens * types.CharsPerToken
	if budget <= 0 {
		return ""
	}

	runes := []rune(chunk)
	if len(runes) < budget {
		return chunk
	}

	tail := string(runes[len(runes)-budget:])
	if idx := strings.LastIndex(tail, ". "); idx > len(tail)/2 {
		tail = tail[idx+2:]
	}
	return tail
}

// joinOverlap prefixes segment with the overlap seed
func joinOverlap(seed, segment string) string {
	if seed == "" {
		return segment
	}
	if segment == "" || unicode.IsSpace([]rune(segment)[0]) {
		return seed + segment
	}
	return seed + "\n" + segment
}

