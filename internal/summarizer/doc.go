// Package summarizer turns chunk group text into structured summaries.
//
// Two providers are available: "openai" calls the chat completions API
// through github.com/sashabaranov/go-openai and asks for a JSON object;
// "local" is an offline extractive summarizer that keeps leading sentences.
//
//	s, err := summarizer.New(summarizer.Config{
//	    Provider:          "openai",
//	    APIKey:            os.Getenv("OPENAI_API_KEY"),
//	    RequestsPerSecond: 1,
//	    CacheSize:         1000,
//	})
//	result, err := s.Summarize(ctx, summarizer.Request{
//	    Text:    group.CombinedText,
//	    Context: summarizer.RequestContext{Title: title, Part: 1, Total: 3, Mode: summarizer.ModeChunk},
//	})
//
// API errors are retried with exponential backoff. Replies that are not the
// expected JSON degrade into FallbackResult instead of failing the call.
// Results are cached in an LRU keyed by a hash of the request, and every
// outbound call waits on a shared token bucket.
package summarizer
