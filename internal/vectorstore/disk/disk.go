package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

const (
	indexSuffix    = ".index"
	segmentsSuffix = ".segments.json"
	manifestSuffix = ".manifest.json"
)

// Manifest names the artifacts of the current generation. It is the only file
// that is ever overwritten; generations themselves are immutable once written.
type Manifest struct {
	Generation string    `json:"generation"`
	Previous   string    `json:"previous,omitempty"`
	Index      string    `json:"index"`
	Segments   string    `json:"segments"`
	Count      int       `json:"count"`
	Dimension  int       `json:"dimension"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists bundles as files under one directory.
//
// Layout for bundle "faq":
//
//	faq.manifest.json
//	faq-<generation>.index
//	faq-<generation>.segments.json
type Store struct {
	mu     sync.RWMutex
	dir    string
	name   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for prune and cleanup warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore keeps the bundle name under dir. Nothing is touched until Build or Load.
func NewStore(dir, name string, opts ...Option) *Store {
	s := &Store{dir: dir, name: name, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) manifestPath() string { return filepath.Join(s.dir, s.name+manifestSuffix) }

func (s *Store) artifactName(gen, suffix string) string { return s.name + "-" + gen + suffix }

// Build writes a new generation and then swaps the manifest to it.
// A failure before the swap leaves the previous bundle current.
func (s *Store) Build(ctx context.Context, segments []string, matrix domain.Matrix) (vectorstore.BuildResult, error) {
	if err := vectorstore.ValidateBuild(segments, matrix); err != nil {
		return vectorstore.BuildResult{}, err
	}
	idx := memory.NewFlat(matrix.Dimension())
	if err := idx.Add(matrix...); err != nil {
		return vectorstore.BuildResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return vectorstore.BuildResult{}, domain.IOError("build", fmt.Errorf("create %s: %w", s.dir, err))
	}
	if err := ctx.Err(); err != nil {
		return vectorstore.BuildResult{}, err
	}

	prev, err := s.readManifest()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("ignoring unreadable manifest", "path", s.manifestPath(), "err", err)
	}

	gen := uuid.NewString()
	m := Manifest{
		Generation: gen,
		Index:      s.artifactName(gen, indexSuffix),
		Segments:   s.artifactName(gen, segmentsSuffix),
		Count:      idx.Len(),
		Dimension:  idx.Dimension(),
		CreatedAt:  time.Now().UTC(),
	}
	if prev != nil {
		m.Previous = prev.Generation
	}

	indexPath := filepath.Join(s.dir, m.Index)
	segmentsPath := filepath.Join(s.dir, m.Segments)
	if err := writeFileAtomic(indexPath, func(w io.Writer) error {
		_, err := idx.WriteTo(w)
		return err
	}); err != nil {
		return vectorstore.BuildResult{}, domain.IOError("build", err)
	}
	if err := writeFileAtomic(segmentsPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(segments)
	}); err != nil {
		_ = os.Remove(indexPath)
		return vectorstore.BuildResult{}, domain.IOError("build", err)
	}
	if err := writeFileAtomic(s.manifestPath(), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}); err != nil {
		_ = os.Remove(indexPath)
		_ = os.Remove(segmentsPath)
		return vectorstore.BuildResult{}, domain.IOError("build", err)
	}
	syncDir(s.dir)

	s.logger.Info("bundle swapped", "bundle", s.name, "generation", gen, "previous", m.Previous, "count", m.Count)
	s.prune(gen, m.Previous)

	return vectorstore.BuildResult{
		Generation:   gen,
		IndexPath:    indexPath,
		SegmentsPath: segmentsPath,
		Count:        m.Count,
	}, nil
}

// Load resolves the manifest once and reads both artifacts of that generation.
func (s *Store) Load(ctx context.Context) (*vectorstore.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, m.Index))
	if err != nil {
		return nil, openError(err)
	}
	idx, err := memory.ReadFlat(f)
	f.Close()
	if err != nil {
		return nil, domain.IOError("load", fmt.Errorf("%s: %w", m.Index, err))
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, m.Segments))
	if err != nil {
		return nil, openError(err)
	}
	var segments []string
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, domain.IOError("load", fmt.Errorf("%s: %w", m.Segments, err))
	}

	if idx.Len() != len(segments) || idx.Len() != m.Count {
		return nil, domain.ValidationError("load",
			fmt.Errorf("generation %s: %d vectors, %d segments, manifest count %d", m.Generation, idx.Len(), len(segments), m.Count))
	}
	return &vectorstore.Bundle{
		Name:       s.name,
		Generation: m.Generation,
		Index:      idx,
		Segments:   segments,
	}, nil
}

// Manifest returns the current manifest.
func (s *Store) Manifest() (*Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readManifest()
}

func (s *Store) readManifest() (*Manifest, error) {
	raw, err := os.ReadFile(s.manifestPath())
	if err != nil {
		return nil, openError(err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, domain.IOError("load", fmt.Errorf("manifest: %w", err))
	}
	if m.Generation == "" || m.Index == "" || m.Segments == "" {
		return nil, domain.IOError("load", errors.New("manifest: missing fields"))
	}
	return &m, nil
}

// prune removes artifacts of generations other than keep.
func (s *Store) prune(keep ...string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("prune: read dir", "dir", s.dir, "err", err)
		return
	}
	for _, e := range entries {
		gen, ok := s.generationOf(e.Name())
		if !ok || slices.Contains(keep, gen) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Warn("prune: remove", "file", e.Name(), "err", err)
			continue
		}
		s.logger.Debug("pruned", "file", e.Name())
	}
}

// generationOf parses "<name>-<uuid><suffix>" and returns the uuid.
func (s *Store) generationOf(file string) (string, bool) {
	rest, ok := strings.CutPrefix(file, s.name+"-")
	if !ok {
		return "", false
	}
	rest = strings.TrimSuffix(rest, ".tmp")
	switch {
	case strings.HasSuffix(rest, indexSuffix):
		rest = strings.TrimSuffix(rest, indexSuffix)
	case strings.HasSuffix(rest, segmentsSuffix):
		rest = strings.TrimSuffix(rest, segmentsSuffix)
	default:
		return "", false
	}
	if _, err := uuid.Parse(rest); err != nil {
		return "", false
	}
	return rest, true
}

func openError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NotFoundError("load", err)
	}
	return domain.IOError("load", err)
}

// writeFileAtomic writes to path+".tmp", fsyncs and renames over path.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

var _ vectorstore.Store = (*Store)(nil)
