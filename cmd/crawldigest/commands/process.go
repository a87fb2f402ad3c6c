package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/crawldigest/internal/pipeline"
)

var untilIdle bool

// NewProcessCmd creates the process command
func NewProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one batch of each stage and exit",
		Long: `Run one chunk batch followed by one summarize batch.

With --until-idle, keep running batches until neither stage finds work.`,
		Args: cobra.NoArgs,
		RunE: runProcess,
	}

	cmd.Flags().BoolVar(&untilIdle, "until-idle", false, "Keep processing until no stage claims anything")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, sum, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() { _ = sum.Close() }()

	out := cmd.OutOrStdout()
	if untilIdle {
		total, err := p.Drain(cmd.Context())
		if total != nil {
			printBatch(out, "total", total)
		}
		return err
	}

	chunked, summarized, err := p.RunOnce(cmd.Context())
	if chunked != nil {
		printBatch(out, "chunk", chunked)
	}
	if summarized != nil {
		printBatch(out, "summarize", summarized)
	}
	return err
}

func printBatch(w io.Writer, label string, r *pipeline.BatchResult) {
	fmt.Fprintf(w, "%s: claimed=%d succeeded=%d failed=%d deferred=%d\n",
		label, r.Claimed, r.Succeeded, r.Failed, r.Deferred)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
