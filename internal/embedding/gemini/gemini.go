package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"docqa/internal/domain"
)

const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

// Config configures the Gemini client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
}

// Client embeds and generates through the Gemini API.
type Client struct {
	api        *genai.Client
	embedModel string
	chatModel  string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GEMINI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.ConfigError("gemini.new", fmt.Errorf("%s not set", cfg.APIKeyEnv))
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-004"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-2.0-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: &cfg.Timeout,
		},
	})
	if err != nil {
		return nil, domain.ConfigError("gemini.new", err)
	}
	return &Client{api: api, embedModel: cfg.EmbedModel, chatModel: cfg.ChatModel}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Model() string { return c.embedModel }

// TaskType maps a mode to the Gemini retrieval task type.
func TaskType(mode domain.Mode) string {
	if mode == domain.ModeQuery {
		return taskQuery
	}
	return taskDocument
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string, mode domain.Mode) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := c.api.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
		TaskType: TaskType(mode),
	})
	if err != nil {
		return nil, domain.ProviderError("gemini.embed", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, domain.ProviderError("gemini.embed", errors.New("no embedding returned"))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e != nil {
			out[i] = e.Values
		}
	}
	return out, nil
}

// Generate sends prompt as a single user turn and returns the reply text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.Models.GenerateContent(ctx, c.chatModel, genai.Text(prompt), nil)
	if err != nil {
		return "", domain.ProviderError("gemini.generate", err)
	}
	text := resp.Text()
	if text == "" {
		return "", domain.ProviderError("gemini.generate", errors.New("empty response"))
	}
	return text, nil
}
