package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/crawldigest/internal/aggregator"
	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/internal/storage"
	"github.com/dshills/crawldigest/internal/summarizer"
)

var verbose atomic.Bool

// SetVerbose toggles per-item debug logging for every stage
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Config contains configuration for the pipeline
type Config struct {
	BatchSize      int           // Items claimed per batch (default: 10)
	ClaimLease     time.Duration // How long a claim stays valid (default: 10m)
	IdleBackoff    time.Duration // Sleep after an empty batch (default: 30s)
	WorkDelay      time.Duration // Sleep after a batch that did work (default: 1s)
	ErrorBackoff   time.Duration // Sleep after a failed batch (default: 60s)
	ReaperSchedule string        // Cron schedule for releasing expired claims (default: @every 5m)

	Chunking chunker.Config
	Grouping chunker.GroupConfig
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		ClaimLease:     10 * time.Minute,
		IdleBackoff:    30 * time.Second,
		WorkDelay:      time.Second,
		ErrorBackoff:   60 * time.Second,
		ReaperSchedule: "@every 5m",
		Chunking:       chunker.DefaultConfig(),
		Grouping:       chunker.DefaultGroupConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = d.ClaimLease
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = d.IdleBackoff
	}
	if c.WorkDelay <= 0 {
		c.WorkDelay = d.WorkDelay
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	if c.ReaperSchedule == "" {
		c.ReaperSchedule = d.ReaperSchedule
	}
	return c
}

// Pipeline wires the chunk and summarize stages to a store
type Pipeline struct {
	store     storage.Storage
	cfg       Config
	chunks    *Coordinator
	summaries *Coordinator
}

// New creates a pipeline over store using s for summarization
func New(store storage.Storage, s summarizer.Summarizer, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()

	agg := aggregator.New(store, s)
	agg.Verbose = verbose.Load

	coordCfg := CoordinatorConfig{
		IdleBackoff:  cfg.IdleBackoff,
		WorkDelay:    cfg.WorkDelay,
		ErrorBackoff: cfg.ErrorBackoff,
	}

	return &Pipeline{
		store: store,
		cfg:   cfg,
		chunks: NewCoordinator(
			NewChunkStage(store, chunker.New(cfg.Chunking), cfg.Grouping, cfg.BatchSize, cfg.ClaimLease),
			coordCfg),
		summaries: NewCoordinator(
			NewSummarizeStage(store, agg, cfg.BatchSize, cfg.ClaimLease),
			coordCfg),
	}
}

// Run starts both stage coordinators and the claim reaper, and blocks until
// ctx is cancelled and in-flight batches have finished
func (p *Pipeline) Run(ctx context.Context) error {
	reaper := cron.New()
	if _, err := reaper.AddFunc(p.cfg.ReaperSchedule, func() {
		if _, err := p.ReapExpiredClaims(ctx); err != nil {
			log.Printf("[reaper] %v", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reaper schedule %q: %w", p.cfg.ReaperSchedule, err)
	}
	reaper.Start()
	defer func() { <-reaper.Stop().Done() }()

	log.Printf("[pipeline] started: batch=%d lease=%v reaper=%q",
		p.cfg.BatchSize, p.cfg.ClaimLease, p.cfg.ReaperSchedule)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.chunks.Run(gctx) })
	g.Go(func() error { return p.summaries.Run(gctx) })
	return g.Wait()
}

// RunOnce runs one chunk batch followed by one summarize batch
func (p *Pipeline) RunOnce(ctx context.Context) (chunked, summarized *BatchResult, err error) {
	chunked, err = p.chunks.RunOnce(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk stage: %w", err)
	}
	summarized, err = p.summaries.RunOnce(ctx)
	if err != nil {
		return chunked, nil, fmt.Errorf("summarize stage: %w", err)
	}
	return chunked, summarized, nil
}

// Drain runs batches until neither stage makes progress. Items deferred by a
// failed merge stay claimed until their lease runs out, so Drain leaves them
// for a later call.
func (p *Pipeline) Drain(ctx context.Context) (*BatchResult, error) {
	total := &BatchResult{}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		chunked, summarized, err := p.RunOnce(ctx)
		if err != nil {
			return total, err
		}
		for _, r := range []*BatchResult{chunked, summarized} {
			total.Claimed += r.Claimed
			total.Succeeded += r.Succeeded
			total.Failed += r.Failed
			total.Errors = append(total.Errors, r.Errors...)
		}
		total.Deferred = summarized.Deferred

		progressed := chunked.Claimed > 0 || summarized.Succeeded+summarized.Failed > 0
		if !progressed {
			return total, nil
		}
	}
}

// ReapExpiredClaims releases claims whose lease has passed
func (p *Pipeline) ReapExpiredClaims(ctx context.Context) (int, error) {
	n, err := p.store.ReleaseExpiredClaims(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired claims: %w", err)
	}
	if n > 0 {
		log.Printf("[reaper] released %d expired claims", n)
	}
	return n, nil
}
