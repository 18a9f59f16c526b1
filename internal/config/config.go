package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// ProviderConfig selects the embedding/generation backend.
type ProviderConfig struct {
	Type      string         `yaml:"type"` // gemini | openai | hashing
	BatchSize int            `yaml:"batch_size"`
	RateLimit float64        `yaml:"rate_limit"` // batch calls per second, 0 = unlimited
	Gemini    *GeminiConfig  `yaml:"gemini,omitempty"`
	OpenAI    *OpenAIConfig  `yaml:"openai,omitempty"`
	Hashing   *HashingConfig `yaml:"hashing,omitempty"`
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env"`
	EmbedModel  string `yaml:"embed_model"`
	ChatModel   string `yaml:"chat_model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	EmbedModel     string `yaml:"embed_model"`
	ChatModel      string `yaml:"chat_model"`
	DocumentPrefix string `yaml:"document_prefix"`
	QueryPrefix    string `yaml:"query_prefix"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
}

// HashingConfig configures the offline embedder.
type HashingConfig struct {
	Dimension int `yaml:"dimension"`
}

// SplitterConfig configures segment length and overlap, in characters.
type SplitterConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty"`
}

// StoreConfig selects where bundles live.
type StoreConfig struct {
	Type       string        `yaml:"type"` // disk | memory | qdrant
	Location   string        `yaml:"location"`
	BundleName string        `yaml:"bundle_name"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant gRPC endpoint.
type QdrantConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"api_key"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// DocumentConfig names the document ingested when no path is given.
type DocumentConfig struct {
	Path         string `yaml:"path"`
	MaxSentences int    `yaml:"summary_sentences"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// EventsConfig enables bundle swap notifications over NATS.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type TracingConfig struct {
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version,omitempty"`
	SampleRate     float64 `yaml:"sample_rate"` // fraction of traces kept; 0 or 1 keeps all
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Store     StoreConfig     `yaml:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Document  DocumentConfig  `yaml:"document"`
	Server    ServerConfig    `yaml:"server"`
	Events    EventsConfig    `yaml:"events"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it returns defaults without writing anything.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return defaultConfig(), "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return defaultConfig(), "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks configuration for issues and returns warnings.
func (c *AppConfig) Validate() []string {
	var warnings []string

	if !slices.Contains([]string{"gemini", "openai", "hashing"}, c.Provider.Type) {
		warnings = append(warnings, fmt.Sprintf("provider type '%s' is unknown", c.Provider.Type))
	}
	if env := c.apiKeyEnv(); env != "" && os.Getenv(env) == "" {
		warnings = append(warnings, fmt.Sprintf("provider '%s' is configured but %s is empty", c.Provider.Type, env))
	}
	if !slices.Contains([]string{"disk", "memory", "qdrant"}, c.Store.Type) {
		warnings = append(warnings, fmt.Sprintf("store type '%s' is unknown", c.Store.Type))
	}
	if c.Store.Type == "qdrant" && (c.Store.Qdrant == nil || c.Store.Qdrant.Addr == "") {
		warnings = append(warnings, "store type 'qdrant' needs store.qdrant.addr")
	}
	if c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		warnings = append(warnings, fmt.Sprintf("splitter chunk_overlap %d is not smaller than chunk_size %d", c.Splitter.ChunkOverlap, c.Splitter.ChunkSize))
	}
	if c.Retrieval.TopK <= 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d must be positive", c.Retrieval.TopK))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]; all traces are kept", c.Tracing.SampleRate))
	}
	if c.Provider.RateLimit < 0 {
		warnings = append(warnings, fmt.Sprintf("provider rate_limit %.2f is negative", c.Provider.RateLimit))
	}
	return warnings
}

func (c *AppConfig) apiKeyEnv() string {
	switch c.Provider.Type {
	case "gemini":
		if c.Provider.Gemini != nil {
			return c.Provider.Gemini.APIKeyEnv
		}
	case "openai":
		if c.Provider.OpenAI != nil {
			return c.Provider.OpenAI.APIKeyEnv
		}
	}
	return ""
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	p := &cfg.Provider
	if p.Type == "" {
		p.Type = "gemini"
	}
	if p.BatchSize == 0 {
		p.BatchSize = 100
	}
	switch p.Type {
	case "gemini":
		if p.Gemini == nil {
			p.Gemini = &GeminiConfig{}
		}
		if p.Gemini.APIKeyEnv == "" {
			p.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if p.Gemini.EmbedModel == "" {
			p.Gemini.EmbedModel = "text-embedding-004"
		}
		if p.Gemini.ChatModel == "" {
			p.Gemini.ChatModel = "gemini-2.0-flash"
		}
		if p.Gemini.TimeoutSecs == 0 {
			p.Gemini.TimeoutSecs = 60
		}
	case "openai":
		if p.OpenAI == nil {
			p.OpenAI = &OpenAIConfig{}
		}
		if p.OpenAI.BaseURL == "" {
			p.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if p.OpenAI.APIKeyEnv == "" {
			p.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if p.OpenAI.EmbedModel == "" {
			p.OpenAI.EmbedModel = "text-embedding-3-small"
		}
		if p.OpenAI.ChatModel == "" {
			p.OpenAI.ChatModel = "gpt-4o-mini"
		}
		if p.OpenAI.TimeoutSecs == 0 {
			p.OpenAI.TimeoutSecs = 60
		}
	case "hashing":
		if p.Hashing == nil {
			p.Hashing = &HashingConfig{}
		}
		if p.Hashing.Dimension == 0 {
			p.Hashing.Dimension = 256
		}
	}

	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 1000
		if cfg.Splitter.ChunkOverlap == 0 {
			cfg.Splitter.ChunkOverlap = 200
		}
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "disk"
	}
	if cfg.Store.Location == "" {
		cfg.Store.Location = "data"
	}
	if cfg.Store.BundleName == "" {
		cfg.Store.BundleName = "index"
	}
	if cfg.Store.Type == "qdrant" {
		if cfg.Store.Qdrant == nil {
			cfg.Store.Qdrant = &QdrantConfig{}
		}
		if cfg.Store.Qdrant.Addr == "" {
			cfg.Store.Qdrant.Addr = "localhost:6334"
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Document.Path == "" {
		cfg.Document.Path = "data/Insurance_FAQ.pdf"
	}
	if cfg.Document.MaxSentences == 0 {
		cfg.Document.MaxSentences = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		cfg.Events.Subject = "rag.bundle.swapped"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "docqa"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
