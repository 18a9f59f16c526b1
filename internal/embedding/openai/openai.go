package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"docqa/internal/domain"
)

// Client is an OpenAI-compatible embeddings and chat client.
type Client struct {
	api            *goopenai.Client
	embedModel     string
	chatModel      string
	documentPrefix string
	queryPrefix    string
}

// Config configures the OpenAI-compatible client.
// The OpenAI API has no task hint, so modes are expressed as text prefixes.
type Config struct {
	BaseURL        string
	APIKeyEnv      string
	EmbedModel     string
	ChatModel      string
	DocumentPrefix string
	QueryPrefix    string
	Timeout        time.Duration
}

// NewClient creates a new client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.ConfigError("openai.new", fmt.Errorf("%s not set", cfg.APIKeyEnv))
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = string(goopenai.SmallEmbedding3)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = goopenai.GPT4oMini
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	apiCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		api:            goopenai.NewClientWithConfig(apiCfg),
		embedModel:     cfg.EmbedModel,
		chatModel:      cfg.ChatModel,
		documentPrefix: cfg.DocumentPrefix,
		queryPrefix:    cfg.QueryPrefix,
	}, nil
}

// Name returns the identifier of this provider.
func (c *Client) Name() string { return "openai" }

// Model returns the embedding model.
func (c *Client) Model() string { return c.embedModel }

// EmbedBatch embeds texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, mode domain.Mode) ([][]float32, error) {
	prefix := c.documentPrefix
	if mode == domain.ModeQuery {
		prefix = c.queryPrefix
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = prefix + t
	}
	resp, err := c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: input,
		Model: goopenai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, domain.ProviderError("openai.embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, domain.ProviderError("openai.embed", errors.New("no embedding returned"))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Generate sends prompt as a single user message and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", domain.ProviderError("openai.generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ProviderError("openai.generate", errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}
