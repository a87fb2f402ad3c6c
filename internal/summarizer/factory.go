package summarizer

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config holds summarizer configuration
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	CacheSize         int
}

// NewLimiter creates the token bucket shared by every outbound summarizer
// call. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// New creates a summarizer with explicit configuration
func New(cfg Config) (Summarizer, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		}, cache, NewLimiter(cfg.RequestsPerSecond, cfg.Burst))
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupported, cfg.Provider)
	}
}
