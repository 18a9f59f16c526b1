package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"docqa/internal/domain"
	"docqa/internal/events"
	"docqa/internal/observability"
	"docqa/internal/retriever"
	"docqa/internal/vectorstore"
)

// Fixed answers returned by Answer.
const (
	MsgNotReady      = "System is not ready. Please ingest a document first."
	MsgNoContext     = "I couldn't find any relevant information in the documents."
	MsgEmptyQuestion = "Please ask a question."
	MsgNoText        = "No text extracted from document"
)

const promptTemplate = `You are a helpful assistant. Answer the question based only on the following context. If the answer is not in the context, say so.

Context:
%s

Question: %s
`

// Ingest stages reported in IngestOutcome.Stage.
const (
	StageExtract = "extract"
	StageEmbed   = "embed"
	StageIndex   = "index"
)

// IngestOutcome is the result of one ingestion. Exactly one of Status, Message
// or Error is set.
type IngestOutcome struct {
	Status        string `json:"status,omitempty"`
	ChunksCreated int    `json:"chunks_created,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	Stage         string `json:"stage,omitempty"`
}

func (o IngestOutcome) OK() bool { return o.Status == "success" }

func failed(stage, msg string) IngestOutcome { return IngestOutcome{Error: msg, Stage: stage} }

// Deps are the collaborators of a Service. Summarizer and Events are optional.
type Deps struct {
	Extractor  domain.Extractor
	Splitter   domain.Splitter
	Embedder   retriever.QueryEmbedder
	Store      vectorstore.Store
	Generator  domain.Generator
	Summarizer domain.Summarizer
	Events     events.Publisher
	Logger     *slog.Logger
}

type Options struct {
	DocumentPath     string
	TopK             int
	SummarySentences int
}

// Service ingests documents into a bundle and answers questions against it.
// Ingestions are serialised; answers run concurrently against the resident bundle.
type Service struct {
	deps      Deps
	opts      Options
	retriever *retriever.Retriever
	logger    *slog.Logger

	ingestMu sync.Mutex
	resident atomic.Pointer[vectorstore.Bundle]
}

func New(deps Deps, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		deps:      deps,
		opts:      opts,
		retriever: retriever.New(deps.Embedder),
		logger:    logger,
	}
}

// Ingest ingests the configured default document.
func (s *Service) Ingest(ctx context.Context) IngestOutcome {
	return s.IngestFile(ctx, s.opts.DocumentPath)
}

// IngestFile rebuilds the bundle from the document at path.
// On failure the previous bundle stays current.
func (s *Service) IngestFile(ctx context.Context, path string) IngestOutcome {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	ctx, span := observability.StartSpan(ctx, "rag.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("rag.document", path))
	start := time.Now()

	text, err := s.deps.Extractor.Extract(path)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("ingest failed", "stage", StageExtract, "path", path, "err", err)
		if errors.Is(err, domain.ErrNotFound) {
			return failed(StageExtract, "File not found at "+path)
		}
		return failed(StageExtract, "Failed to read document: "+err.Error())
	}

	segments := s.deps.Splitter.Split(text)
	if len(segments) == 0 {
		s.logger.Warn("ingest produced no segments", "path", path)
		return IngestOutcome{Message: MsgNoText}
	}
	span.SetAttributes(attribute.Int("rag.segments", len(segments)))

	matrix, err := s.deps.Embedder.Embed(ctx, segments, domain.ModeDocument)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("ingest failed", "stage", StageEmbed, "path", path, "err", err)
		return failed(StageEmbed, "Embedding failed: "+err.Error())
	}

	res, err := s.deps.Store.Build(ctx, segments, matrix)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("ingest failed", "stage", StageIndex, "path", path, "err", err)
		return failed(StageIndex, "Indexing failed: "+err.Error())
	}

	var bundleName string
	if b, err := s.deps.Store.Load(ctx); err == nil {
		s.resident.Store(b)
		bundleName = b.Name
	} else {
		// the next Answer loads it
		s.resident.Store(nil)
		s.logger.Warn("reload after build failed", "err", err)
	}

	if err := s.deps.Events.BundleSwapped(ctx, events.BundleEvent{
		Bundle:     bundleName,
		Generation: res.Generation,
		Count:      res.Count,
		Source:     path,
		At:         time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("publish bundle event", "err", err)
	}

	out := IngestOutcome{Status: "success", ChunksCreated: len(segments)}
	if s.deps.Summarizer != nil {
		summary, err := s.deps.Summarizer.Summarize(text, s.opts.SummarySentences)
		if err != nil {
			s.logger.Warn("summarize", "err", err)
		}
		out.Summary = summary
	}
	s.logger.Info("ingest done", "path", path, "segments", len(segments), "generation", res.Generation,
		"dimension", matrix.Dimension(), "took", time.Since(start))
	return out
}

// Answer never fails; every error becomes one of the fixed sentences.
func (s *Service) Answer(ctx context.Context, question string) string {
	ctx, span := observability.StartSpan(ctx, "rag.answer")
	defer span.End()

	if strings.TrimSpace(question) == "" {
		return MsgEmptyQuestion
	}

	bundle, err := s.bundle(ctx)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Info("answer without bundle", "err", err)
		return MsgNotReady
	}
	span.SetAttributes(attribute.String("rag.generation", bundle.Generation))

	segments, err := s.retriever.RetrieveSegments(ctx, question, bundle, s.opts.TopK)
	if err != nil && (errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIO)) {
		// The resident bundle may have been pruned by another process; reload once.
		s.resident.CompareAndSwap(bundle, nil)
		if fresh, lerr := s.bundle(ctx); lerr == nil {
			s.logger.Warn("resident bundle unusable, reloaded", "from", bundle.Generation, "to", fresh.Generation, "err", err)
			bundle = fresh
			span.SetAttributes(attribute.String("rag.generation", bundle.Generation))
			segments, err = s.retriever.RetrieveSegments(ctx, question, bundle, s.opts.TopK)
		}
	}
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("retrieve failed", "err", err)
		return "Error retrieving context: " + err.Error()
	}
	if len(segments) == 0 {
		return MsgNoContext
	}
	positions := make([]int, len(segments))
	for i, seg := range segments {
		positions[i] = seg.Index
	}
	span.SetAttributes(attribute.IntSlice("rag.context_positions", positions))

	answer, err := s.deps.Generator.Generate(ctx, BuildPrompt(domain.Texts(segments), question))
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("generate failed", "err", err)
		return "Error generating answer: " + err.Error()
	}
	return answer
}

// BuildPrompt binds the retrieved segments and the question into the answer prompt.
func BuildPrompt(segments []string, question string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(segments, "\n\n"), question)
}

// Ready reports whether a bundle is resident or loadable.
func (s *Service) Ready(ctx context.Context) bool {
	_, err := s.bundle(ctx)
	return err == nil
}

// HandleBundleSwapped drops the resident bundle when another process swapped in
// a different generation.
func (s *Service) HandleBundleSwapped(_ context.Context, ev events.BundleEvent) {
	cur := s.resident.Load()
	if cur != nil && cur.Generation == ev.Generation {
		return
	}
	s.resident.CompareAndSwap(cur, nil)
	s.logger.Info("resident bundle invalidated", "generation", ev.Generation)
}

func (s *Service) bundle(ctx context.Context) (*vectorstore.Bundle, error) {
	if b := s.resident.Load(); b != nil {
		return b, nil
	}
	b, err := s.deps.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.resident.CompareAndSwap(nil, b)
	return b, nil
}
