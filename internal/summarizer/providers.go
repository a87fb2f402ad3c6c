package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dshills/crawldigest/pkg/types"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// DefaultOpenAIModel is the default chat completion model
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultMaxTokens bounds the completion length
	DefaultMaxTokens = 1024
	// DefaultTimeout bounds one API attempt
	DefaultTimeout = 60 * time.Second

	// Local provider limits
	localMaxSentences = 3
	localMaxKeyPoints = 5
)

// chatCompleter is the subset of the go-openai client used here
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // Optional: override the API endpoint
	MaxTokens int
	Timeout   time.Duration
	Retry     RetryConfig
}

// OpenAIProvider implements Summarizer using the OpenAI chat completions API
type OpenAIProvider struct {
	client    chatCompleter
	model     string
	maxTokens int
	timeout   time.Duration
	retry     RetryConfig
	cache     *Cache
	limiter   *rate.Limiter
}

// NewOpenAIProvider creates a new OpenAI summarizer. cache and limiter may be nil.
func NewOpenAIProvider(cfg OpenAIConfig, cache *Cache, limiter *rate.Limiter) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not set", ErrNoProviderEnabled)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		cache:     cache,
		limiter:   limiter,
	}
	if p.model == "" {
		p.model = DefaultOpenAIModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = DefaultMaxTokens
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.retry.MaxRetries <= 0 {
		p.retry = DefaultRetryConfig()
	}
	if p.retry.Retryable == nil {
		p.retry.Retryable = isRetryable
	}
	return p, nil
}

func (o *OpenAIProvider) Summarize(ctx context.Context, req Request) (*types.SummaryResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := ComputeHash(req)
	if o.cache != nil {
		if r, ok := o.cache.Get(hash); ok {
			return r, nil
		}
	}

	body, err := retryWithBackoff(ctx, o.retry, func() (string, error) {
		return o.callAPI(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	result, err := ParseResult(body)
	if err != nil {
		log.Printf("[summarizer] %v, using fallback summary", err)
		return FallbackResult(req.Text), nil
	}

	if o.cache != nil {
		o.cache.Set(hash, result)
	}
	return result, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, req Request) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// isRetryable treats client errors other than rate limiting as permanent
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// LocalProvider is an offline extractive summarizer. It keeps the leading
// sentences of the text and never calls out of process.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a new local summarizer
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{cache: cache}, nil
}

func (l *LocalProvider) Summarize(ctx context.Context, req Request) (*types.SummaryResult, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req)
	if l.cache != nil {
		if r, ok := l.cache.Get(hash); ok {
			return r, nil
		}
	}

	sentences := splitSentences(req.Text)
	lead := sentences
	if len(lead) > localMaxSentences {
		lead = lead[:localMaxSentences]
	}
	summary := strings.Join(lead, " ")
	if runes := []rune(summary); len(runes) > FallbackSummaryRunes {
		summary = string(runes[:FallbackSummaryRunes]) + "..."
	}

	var points []string
	if req.Context.Mode == ModeMerge && len(req.Context.KeyPoints) > 0 {
		points = req.Context.KeyPoints
	} else {
		points = sentences
	}
	if len(points) > localMaxKeyPoints {
		points = points[:localMaxKeyPoints]
	}

	result := &types.SummaryResult{
		Summary:   summary,
		KeyPoints: append([]string(nil), points...),
		Category:  localCategory(req.Context.Kind),
		Sentiment: types.DefaultSentiment,
	}
	result.Normalize()

	if l.cache != nil {
		l.cache.Set(hash, result)
	}
	return result, nil
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return "extractive"
}

func (l *LocalProvider) Close() error {
	return nil
}

func localCategory(kind types.ContentKind) string {
	if kind == types.KindCode || kind == types.KindMixed {
		return "programming"
	}
	return types.DefaultCategory
}

// splitSentences splits on terminal punctuation followed by whitespace
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(strings.Join(strings.Fields(text), " "))
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
