package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/crawldigest/internal/chunker"
	"github.com/dshills/crawldigest/internal/pipeline"
	"github.com/dshills/crawldigest/internal/summarizer"
)

// Environment variables that override file values
const (
	EnvDBPath            = "CRAWLDIGEST_DB_PATH"
	EnvProvider          = "CRAWLDIGEST_SUMMARIZER_PROVIDER"
	EnvAPIKey            = "OPENAI_API_KEY"
	EnvModel             = "CRAWLDIGEST_OPENAI_MODEL"
	EnvBaseURL           = "CRAWLDIGEST_OPENAI_BASE_URL"
	EnvBatchSize         = "CRAWLDIGEST_BATCH_SIZE"
	EnvRequestsPerSecond = "CRAWLDIGEST_REQUESTS_PER_SECOND"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

type Config struct {
	DBPath     string           `yaml:"db_path"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

type ChunkingConfig struct {
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk"`
	MinTokensPerChunk int `yaml:"min_tokens_per_chunk"`
	OverlapTokens     int `yaml:"overlap_tokens"`
	ChunksPerGroup    int `yaml:"chunks_per_group"`
	MaxChunksPerGroup int `yaml:"max_chunks_per_group"`
}

type PipelineConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	IdleBackoff    time.Duration `yaml:"idle_backoff"`
	WorkDelay      time.Duration `yaml:"work_delay"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
	ClaimLease     time.Duration `yaml:"claim_lease"`
	ReaperSchedule string        `yaml:"reaper_schedule"`
}

type SummarizerConfig struct {
	Provider          string        `yaml:"provider"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CacheSize         int           `yaml:"cache_size"`
}

// Load reads .env from the working directory, then the YAML file at path
// (skipped when path is empty), then applies environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} references with environment values.
// Unset variables are left as-is.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRegex.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Summarizer.Provider = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Summarizer.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Summarizer.Model = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Summarizer.BaseURL = v
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", EnvBatchSize, err)
		}
		cfg.Pipeline.BatchSize = n
	}
	if v := os.Getenv(EnvRequestsPerSecond); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %s must be a number: %w", EnvRequestsPerSecond, err)
		}
		cfg.Summarizer.RequestsPerSecond = f
	}
	return nil
}

// DefaultDBPath is ~/.crawldigest/crawldigest.db, or a file in the working
// directory when the home directory cannot be resolved.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "crawldigest.db"
	}
	return filepath.Join(home, ".crawldigest", "crawldigest.db")
}

func setDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}

	c := &cfg.Chunking
	if c.MaxTokensPerChunk == 0 {
		c.MaxTokensPerChunk = chunker.DefaultMaxTokensPerChunk
	}
	if c.MinTokensPerChunk == 0 {
		c.MinTokensPerChunk = chunker.DefaultMinTokensPerChunk
	}
	if c.OverlapTokens == 0 {
		c.OverlapTokens = chunker.DefaultOverlapTokens
	}
	if c.ChunksPerGroup == 0 {
		c.ChunksPerGroup = chunker.DefaultChunksPerGroup
	}
	if c.MaxChunksPerGroup == 0 {
		c.MaxChunksPerGroup = chunker.DefaultMaxChunksPerGroup
	}

	d := pipeline.DefaultConfig()
	p := &cfg.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = d.BatchSize
	}
	if p.IdleBackoff == 0 {
		p.IdleBackoff = d.IdleBackoff
	}
	if p.WorkDelay == 0 {
		p.WorkDelay = d.WorkDelay
	}
	if p.ErrorBackoff == 0 {
		p.ErrorBackoff = d.ErrorBackoff
	}
	if p.ClaimLease == 0 {
		p.ClaimLease = d.ClaimLease
	}
	if p.ReaperSchedule == "" {
		p.ReaperSchedule = d.ReaperSchedule
	}

	s := &cfg.Summarizer
	if s.Provider == "" {
		if s.APIKey != "" {
			s.Provider = summarizer.ProviderOpenAI
		} else {
			s.Provider = summarizer.ProviderLocal
		}
	}
	s.Provider = strings.ToLower(s.Provider)
	if s.Model == "" {
		s.Model = summarizer.DefaultOpenAIModel
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = summarizer.DefaultMaxTokens
	}
	if s.Timeout == 0 {
		s.Timeout = summarizer.DefaultTimeout
	}
	if s.RequestsPerSecond == 0 {
		s.RequestsPerSecond = 1
	}
	if s.Burst == 0 {
		s.Burst = 1
	}
	if s.CacheSize == 0 {
		s.CacheSize = 1000
	}
}

// Validate checks that the configuration is internally consistent
func (cfg *Config) Validate() error {
	c := cfg.Chunking
	if c.MaxTokensPerChunk <= 0 {
		return fmt.Errorf("config: chunking.max_tokens_per_chunk must be positive")
	}
	if c.MinTokensPerChunk < 0 || c.MinTokensPerChunk > c.MaxTokensPerChunk {
		return fmt.Errorf("config: chunking.min_tokens_per_chunk must be between 0 and max_tokens_per_chunk")
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxTokensPerChunk {
		return fmt.Errorf("config: chunking.overlap_tokens must be less than max_tokens_per_chunk")
	}
	if c.ChunksPerGroup < 1 {
		return fmt.Errorf("config: chunking.chunks_per_group must be at least 1")
	}
	if c.MaxChunksPerGroup < c.ChunksPerGroup {
		return fmt.Errorf("config: chunking.max_chunks_per_group must be at least chunks_per_group")
	}

	if cfg.Pipeline.BatchSize < 1 {
		return fmt.Errorf("config: pipeline.batch_size must be at least 1")
	}
	if cfg.Pipeline.ClaimLease < 0 {
		return fmt.Errorf("config: pipeline.claim_lease must not be negative")
	}

	switch cfg.Summarizer.Provider {
	case summarizer.ProviderOpenAI:
		if cfg.Summarizer.APIKey == "" {
			return fmt.Errorf("config: summarizer.api_key (or %s) is required for the openai provider", EnvAPIKey)
		}
	case summarizer.ProviderLocal:
	default:
		return fmt.Errorf("config: unknown summarizer.provider %q", cfg.Summarizer.Provider)
	}
	if cfg.Summarizer.RequestsPerSecond < 0 {
		return fmt.Errorf("config: summarizer.requests_per_second must not be negative")
	}
	return nil
}

// PipelineConfig converts the loaded values into pipeline settings
func (cfg *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		ClaimLease:     cfg.Pipeline.ClaimLease,
		IdleBackoff:    cfg.Pipeline.IdleBackoff,
		WorkDelay:      cfg.Pipeline.WorkDelay,
		ErrorBackoff:   cfg.Pipeline.ErrorBackoff,
		ReaperSchedule: cfg.Pipeline.ReaperSchedule,
		Chunking: chunker.Config{
			MaxTokensPerChunk: cfg.Chunking.MaxTokensPerChunk,
			MinTokensPerChunk: cfg.Chunking.MinTokensPerChunk,
			OverlapTokens:     cfg.Chunking.OverlapTokens,
		},
		Grouping: chunker.GroupConfig{
			ChunksPerGroup:    cfg.Chunking.ChunksPerGroup,
			MaxChunksPerGroup: cfg.Chunking.MaxChunksPerGroup,
		},
	}
}

// SummarizerConfig converts the loaded values into summarizer settings
func (cfg *Config) SummarizerConfig() summarizer.Config {
	s := cfg.Summarizer
	return summarizer.Config{
		Provider:          s.Provider,
		APIKey:            s.APIKey,
		Model:             s.Model,
		BaseURL:           s.BaseURL,
		MaxTokens:         s.MaxTokens,
		Timeout:           s.Timeout,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
		CacheSize:         s.CacheSize,
	}
}
