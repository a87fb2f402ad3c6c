// Package types provides shared type definitions for the crawldigest pipeline.
//
// This package defines domain types used across the chunker, storage, summarizer
// and aggregator packages: crawled documents, chunks, chunk groups, summary
// results and the closed status enums that drive the pipeline state machines.
//
// # Documents
//
// A Document is what a crawling collaborator hands to the pipeline:
//
//	doc := types.Document{
//	    URL:          "https://example.com/post",
//	    Title:        "Example",
//	    Text:         body,
//	    CodeSnippets: []string{"fmt.Println(1)"},
//	    Kind:         types.KindMixed,
//	}
//	if err := doc.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Status Enums
//
// ItemStatus and GroupStatus are closed string enums. Values read back from
// storage are checked with Valid, so an unknown string never reaches the
// pipeline:
//
//	pending -> chunked -> summarized
//	        |          \-> aggregation_failed
//	        \-> failed
//
// # Token Estimation
//
// Every sizing decision uses EstimateTokens, which approximates one token per
// four characters (runes), rounded up:
//
//	types.EstimateTokens("abcde") // 2
package types
