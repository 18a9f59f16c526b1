package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/service"
	"docqa/internal/vectorstore/disk"
	"docqa/internal/vectorstore/memory"
)

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "debug", Format: "json"}, &buf).Debug("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "bogus", Format: "text"}, &buf).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("unknown level should fall back to info, got %q", buf.String())
	}
}

func TestNewProvider_UnknownType(t *testing.T) {
	_, err := newProvider(context.Background(), config.ProviderConfig{Type: "nope"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNewStore_Types(t *testing.T) {
	s, closeFn, err := newStore(config.StoreConfig{Type: "disk", Location: t.TempDir(), BundleName: "index"}, nil)
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	closeFn()
	if _, ok := s.(*disk.Store); !ok {
		t.Errorf("expected *disk.Store, got %T", s)
	}

	s, _, err = newStore(config.StoreConfig{Type: "memory", BundleName: "index"}, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("expected *memory.Store, got %T", s)
	}

	if _, _, err := newStore(config.StoreConfig{Type: "s3"}, nil); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEchoGenerator_ReturnsFirstSegment(t *testing.T) {
	prompt := service.BuildPrompt([]string{"Flood damage is covered.", "Premiums are monthly."}, "Is flood covered?")
	got, err := echoGenerator{}.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Flood damage is covered." {
		t.Fatalf("got %q", got)
	}
	if _, err := (echoGenerator{}).Generate(context.Background(), "no context here"); err == nil {
		t.Fatal("expected error for prompt without context")
	}
}

func TestBuildApp_OfflineIngestAndAnswer(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "faq.txt")
	text := "Flood damage is covered by the premium plan.\n\nClaims are filed online within thirty days."
	if err := os.WriteFile(doc, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.AppConfig{
		Provider:  config.ProviderConfig{Type: "hashing", Hashing: &config.HashingConfig{Dimension: 128}},
		Splitter:  config.SplitterConfig{ChunkSize: 60, ChunkOverlap: 10},
		Store:     config.StoreConfig{Type: "disk", Location: dir, BundleName: "faq"},
		Document:  config.DocumentConfig{Path: doc, MaxSentences: 1},
		Retrieval: config.RetrievalConfig{TopK: 1},
	}
	var logs bytes.Buffer
	a, err := buildApp(context.Background(), cfg, newLogger(config.LogConfig{Level: "info"}, &logs))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	if a.svc.Ready(context.Background()) {
		t.Fatal("expected no bundle before ingest")
	}
	out := a.svc.Ingest(context.Background())
	if !out.OK() {
		t.Fatalf("ingest failed: %+v", out)
	}
	if out.ChunksCreated < 2 {
		t.Errorf("expected at least 2 chunks, got %d", out.ChunksCreated)
	}
	answer := a.svc.Answer(context.Background(), "Is flood damage covered?")
	if !strings.Contains(answer, "Flood") {
		t.Errorf("expected flood segment in answer, got %q", answer)
	}
	if !strings.Contains(logs.String(), "service assembled") {
		t.Errorf("expected assembly log line, got %q", logs.String())
	}
}

func TestWriteConfig(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nested", "config.yaml")
	var out bytes.Buffer
	if err := writeConfig("", dst, false, &out); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	cfg, err := config.Load(dst)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.Store.Type != "disk" || cfg.Retrieval.TopK != 3 {
		t.Errorf("unexpected round trip: %+v", cfg)
	}
	if err := writeConfig("", dst, false, &out); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if err := writeConfig("", dst, true, &out); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}
