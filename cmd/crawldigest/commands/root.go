package commands

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/crawldigest/internal/config"
	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/internal/summarizer"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawldigest",
		Short: "Chunk and summarize crawled web content",
		Long: `crawldigest turns crawled pages into structured summaries.

Pages are ingested into a SQLite store, split into overlapping token-sized
chunks, batched into groups, summarized group by group and merged into one
final summary per page.`,
		Version:       versionInfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Stdout is reserved for command output and the MCP protocol
			log.SetOutput(os.Stderr)
			pipeline.SetVerbose(verbose)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log per-item pipeline details")

	cmd.AddCommand(
		NewRunCmd(),
		NewIngestCmd(),
		NewProcessCmd(),
		NewStatusCmd(),
		NewSummaryCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// app bundles the loaded configuration with the resources built from it
type app struct {
	cfg   *config.Config
	store *storage.SQLiteStorage
}

// openApp loads configuration and opens the store
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return &app{cfg: cfg, store: store}, nil
}

// newPipeline builds the summarizer and the pipeline over the app's store
func (a *app) newPipeline() (*pipeline.Pipeline, summarizer.Summarizer, error) {
	sum, err := summarizer.New(a.cfg.SummarizerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize summarizer: %w", err)
	}
	if verbose {
		log.Printf("[pipeline] summarizer: provider=%s model=%s", sum.Provider(), sum.Model())
	}
	return pipeline.New(a.store, sum, a.cfg.PipelineConfig()), sum, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("warning: failed to close storage: %v", err)
	}
}
