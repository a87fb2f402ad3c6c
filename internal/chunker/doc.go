// Package chunker divides crawled document text into overlapping chunks and
// batches those chunks into groups sized for one summarization call.
//
// # Basic Usage
//
//	c := chunker.New(chunker.DefaultConfig())
//	chunks := c.Chunk(doc.Text, types.KindArticle)
//
//	// after persisting chunks (so they carry ids)
//	groups := chunker.BuildGroups(saved, chunker.DefaultGroupConfig())
//
// # Boundaries
//
// FindBoundaries returns candidate cut points ordered by offset:
//   - Paragraph: after a blank line (priority 100)
//   - Section: after a markdown heading line (priority 90)
//   - Code block: at both edges of a fenced or <pre> block (priority 85)
//   - Sentence: after terminal punctuation followed by an uppercase word (priority 50)
//
// A synthetic paragraph boundary at end-of-text is always appended.
//
// # Chunk Sizing
//
// Target token counts (one token per four characters, rounded up):
//   - Minimum: 300 tokens, enforced opportunistically
//   - Maximum: 1200 tokens, soft; an undersized chunk absorbs an overflowing segment
//   - Overlap: 100 tokens of the previous chunk seed the next one
//
// Text without any natural boundary is sliced into fixed-width windows of
// MaxCharsPerChunk characters that overlap by OverlapChars.
//
// # Grouping
//
// Groups start every ChunksPerGroup chunks and span up to MaxChunksPerGroup
// chunks. With the defaults (2 and 3) each group shares its last chunk with
// the next group.
package chunker
