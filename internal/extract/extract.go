// Package extract reads the full text of a document from disk.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

// Extractor dispatches on file extension: .pdf through the PDF reader,
// everything else is read as UTF-8 text.
type Extractor struct{}

// New returns an Extractor.
func New() Extractor { return Extractor{} }

func (Extractor) Extract(path string) (string, error) { return File(path) }

func File(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NotFoundError("extract", fmt.Errorf("file not found at %s", path))
		}
		return "", domain.IOError("extract", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfText(path)
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", domain.IOError("extract", err)
		}
		return string(b), nil
	}
}

// pdfText returns the plain text of every page in page order, one page per line.
// The PDF reader panics on structurally broken files; that is reported as an IO error.
func pdfText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", domain.IOError("extract", fmt.Errorf("read pdf: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", domain.IOError("extract", fmt.Errorf("read pdf: %w", err))
	}
	defer f.Close()

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		pageText, err := p.GetPlainText(fonts)
		if err != nil {
			return "", domain.IOError("extract", fmt.Errorf("read pdf page %d: %w", i, err))
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

var _ domain.Extractor = Extractor{}
