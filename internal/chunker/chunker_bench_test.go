package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/pkg/types"
)

func benchArticle(paragraphs int) string {
	var b strings.Builder
	for i := 0; i < paragraphs; i++ {
		fmt.Fprintf(&b, "## Section %d\n\n", i+1)
		for j := 0; j < 4; j++ {
			fmt.Fprintf(&b, "Sentence %d of section %d talks about crawling and summarizing pages. ", j+1, i+1)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func BenchmarkChunk_Article(b *testing.B) {
	text := benchArticle(200)
	c := chunker.New(chunker.DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chunks := c.Chunk(text, types.KindArticle)
		if len(chunks) == 0 {
			b.Fatal("no chunks")
		}
	}
}

func BenchmarkChunk_FixedWidth(b *testing.B) {
	text := strings.Repeat("x", 100000)
	c := chunker.New(chunker.DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		chunks := c.Chunk(text, types.KindCode)
		if len(chunks) == 0 {
			b.Fatal("no chunks")
		}
	}
}

func BenchmarkBuildGroups(b *testing.B) {
	chunks := chunker.New(chunker.DefaultConfig()).Chunk(benchArticle(400), types.KindArticle)
	cfg := chunker.DefaultGroupConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		groups := chunker.BuildGroups(chunks, cfg)
		if len(groups) == 0 {
			b.Fatal("no groups")
		}
	}
}
