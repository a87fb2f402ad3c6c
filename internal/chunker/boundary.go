package chunker

import (
	"regexp"
	"sort"
)

// BoundaryKind identifies what kind of structure a boundary sits on
type BoundaryKind string

const (
	BoundaryParagraph BoundaryKind = "paragraph"
	BoundarySection   BoundaryKind = "section"
	BoundaryCodeBlock BoundaryKind = "code_block"
	BoundarySentence  BoundaryKind = "sentence"
)

// Boundary priorities. The packer treats every boundary as an equally valid cut point.
const (
	PriorityParagraph = 100
	PrioritySection   = 90
	PriorityCodeBlock = 85
	PrioritySentence  = 50
)

// Boundary is a candidate split offset (in bytes) within a text
type Boundary struct {
	Offset   int
	Kind     BoundaryKind
	Priority int

	// Synthetic marks the end-of-text boundary appended by FindBoundaries
	Synthetic bool
}

var (
	paragraphPattern = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)
	sectionPattern   = regexp.MustCompile(`(?m)^#+[^\n]*`)
	fencedPattern    = regexp.MustCompile("(?s)```.*?```")
	prePattern       = regexp.MustCompile(`(?is)<pre[^>]*>.*?</pre>`)
	sentencePattern  = regexp.MustCompile(`[.!?]\s+[A-Z]`)
)

// FindBoundaries scans text for paragraph, section, code block and sentence
// boundaries, sorted ascending by offset. Duplicate offsets are kept. The last
// element is always a synthetic paragraph boundary at len(text).
func FindBoundaries(text string) []Boundary {
	var boundaries []Boundary

	for _, m := range paragraphPattern.FindAllStringIndex(text, -1) {
		boundaries = append(boundaries, Boundary{Offset: m[1], Kind: BoundaryParagraph, Priority: PriorityParagraph})
	}

	for _, m := range sectionPattern.FindAllStringIndex(text, -1) {
		boundaries = append(boundaries, Boundary{Offset: m[1], Kind: BoundarySection, Priority: PrioritySection})
	}

	// Code blocks are flagged on both edges
	for _, pattern := range []*regexp.Regexp{fencedPattern, prePattern} {
		for _, m := range pattern.FindAllStringIndex(text, -1) {
			boundaries = append(boundaries,
				Boundary{Offset: m[0], Kind: BoundaryCodeBlock, Priority: PriorityCodeBlock},
				Boundary{Offset: m[1], Kind: BoundaryCodeBlock, Priority: PriorityCodeBlock},
			)
		}
	}

	for _, m := range sentencePattern.FindAllStringIndex(text, -1) {
		boundaries = append(boundaries, Boundary{Offset: m[0] + 1, Kind: BoundarySentence, Priority: PrioritySentence})
	}

	sort.SliceStable(boundaries, func(i, j int) bool {
		return boundaries[i].Offset < boundaries[j].Offset
	})

	return append(boundaries, Boundary{
		Offset:    len(text),
		Kind:      BoundaryParagraph,
		Priority:  PriorityParagraph,
		Synthetic: true,
	})
}

// hasNaturalBoundary reports whether any boundary other than the synthetic end exists
func hasNaturalBoundary(boundaries []Boundary) bool {
	for _, b := range boundaries {
		if !b.Synthetic {
			return true
		}
	}
	return false
}
