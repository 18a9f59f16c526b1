package gemini

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/domain"
)

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewClient(context.Background(), Config{})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "k")
	c, err := NewClient(context.Background(), Config{APIKeyEnv: "TEST_GEMINI_KEY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != "text-embedding-004" || c.chatModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected defaults %q %q", c.Model(), c.chatModel)
	}
	if c.Name() != "gemini" {
		t.Fatalf("unexpected name %q", c.Name())
	}
}

func TestTaskType(t *testing.T) {
	if TaskType(domain.ModeDocument) != "RETRIEVAL_DOCUMENT" {
		t.Errorf("document mode mapped to %q", TaskType(domain.ModeDocument))
	}
	if TaskType(domain.ModeQuery) != "RETRIEVAL_QUERY" {
		t.Errorf("query mode mapped to %q", TaskType(domain.ModeQuery))
	}
}
