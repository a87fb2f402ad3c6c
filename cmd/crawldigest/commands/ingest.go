package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/pkg/types"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file]",
		Short: "Queue crawled documents for processing",
		Long: `Read one JSON document, or a JSON array of documents, from a file or stdin
and store each as a pending content item.

Document fields: url, title, text, code_snippets, content_type
(article, code or mixed).`,
		Example: `  crawldigest ingest page.json
  crawler --json | crawldigest ingest`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	docs, err := decodeDocuments(data)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents in input")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, doc := range docs {
		item, err := pipeline.Ingest(cmd.Context(), a.store, doc)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %q: %v\n", doc.URL, err)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\t%d tokens\n", item.URL, item.Status, item.TotalTokens)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents rejected", failed, len(docs))
	}
	return nil
}

// decodeDocuments accepts a single JSON object or an array of them
func decodeDocuments(data []byte) ([]types.Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var docs []types.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parsing document array: %w", err)
		}
		return docs, nil
	}

	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return []types.Document{doc}, nil
}
