package summarizer

import (
	"fmt"
	"strings"

	"github.com/dshills/crawldigest/pkg/types"
)

const systemPrompt = `You summarize crawled web content for a reading digest.
Respond with ONLY a JSON object with these fields:
  "summary": a concise summary (string)
  "key_points": the most important points (array of strings, at most 7)
  "category": one lowercase topic word such as technology, science, business, programming or general (string)
  "sentiment": one of positive, negative, neutral, mixed (string)
No additional text.`

// buildUserPrompt renders the user message for a request
func buildUserPrompt(req Request) string {
	var b strings.Builder
	rc := req.Context

	if rc.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", rc.Title)
	}
	kind := rc.Kind
	if kind == "" {
		kind = types.KindArticle
	}
	fmt.Fprintf(&b, "Content type: %s\n", kind)

	switch rc.Mode {
	case ModeMerge:
		b.WriteString("\nThe following are summaries of consecutive parts of one document, in order.\n")
		b.WriteString("Combine them into one cohesive summary of the whole document.\n\n")
		b.WriteString(req.Text)
		if len(rc.KeyPoints) > 0 {
			b.WriteString("\n\nKey points collected from the parts:\n")
			for _, kp := range rc.KeyPoints {
				fmt.Fprintf(&b, "- %s\n", kp)
			}
			b.WriteString("\nKeep the most important key points and drop duplicates.")
		}
	default:
		if rc.Total > 1 {
			fmt.Fprintf(&b, "\nThis is part %d of %d of the document.\n", rc.Part, rc.Total)
		}
		b.WriteString("\nSummarize this content:\n\n")
		b.WriteString(req.Text)
	}

	return b.String()
}
