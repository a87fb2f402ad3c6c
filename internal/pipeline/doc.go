// Package pipeline drives content items from ingestion to final summary.
//
// Two stages run as independent batch coordinators against the shared store:
//
//	pending --chunk--> chunked --summarize--> summarized
//	   |                  |
//	   +--> failed        +--> failed | aggregation_failed
//
// Each coordinator claims a batch with a lease, processes the items one by
// one, then sleeps: a short delay after useful work, a longer one when the
// queue is empty, and the longest after a batch that failed as a whole.
//
// # Basic Usage
//
//	p := pipeline.New(store, summ, pipeline.DefaultConfig())
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := p.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run also schedules a cron job that releases claims left behind by
// crashed workers. For one-shot use, RunOnce processes a single batch per
// stage and Drain keeps going until both queues are empty.
//
// # Idempotency
//
// Chunks, groups, partials and summaries are all keyed upserts, so an item
// reprocessed after a crash or lease expiry overwrites its previous rows.
// Re-ingesting a url with new text resets it to pending; unchanged text
// leaves its status alone.
package pipeline
