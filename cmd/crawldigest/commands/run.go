package commands

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/crawldigest/internal/mcp"
)

var runMCP bool

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the chunk and summarize stages until interrupted",
		Long: `Run both pipeline stages continuously.

Each stage claims a batch of items, processes it and sleeps before the next
batch. Expired claims are released on the reaper schedule. SIGINT or SIGTERM
stops new batches and waits for the running ones to finish.`,
		Example: `  # Process continuously
  crawldigest run

  # Also serve MCP tools on stdio
  crawldigest run --mcp`,
		RunE: runRun,
	}

	cmd.Flags().BoolVar(&runMCP, "mcp", false, "Serve MCP tools over stdio alongside the pipeline")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("crawldigest %s starting: db=%s provider=%s", versionInfo.Version, a.cfg.DBPath, sum.Provider())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })

	if runMCP {
		server, err := mcp.NewServer(a.store, p)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			log.Println("MCP server ready, listening on stdio...")
			err := server.Serve(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// Stdin closing ends the session and the process with it
			stop()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Println("crawldigest stopped")
	return err
}
