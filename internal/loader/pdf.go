// Package loader reads the PDF corpus page by page.
package loader

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dslipak/pdf"
	"go.uber.org/zap"

	"cabot/internal/domain"
	"cabot/internal/logger"
)

// PDFLoader turns every PDF in a folder into one Document per page.
type PDFLoader struct {
	log       *zap.Logger
	readPages func(path string) ([]string, error)
}

// NewPDFLoader creates a loader backed by github.com/dslipak/pdf.
func NewPDFLoader(log *zap.Logger) *PDFLoader {
	return &PDFLoader{log: logger.OrNop(log), readPages: readPDFPages}
}

// LoadDir loads every *.pdf directly under dir, ordered by file name.
// Pages without extractable text are skipped.
func (l *PDFLoader) LoadDir(dir string) ([]domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read resources folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	var docs []domain.Document
	for _, path := range files {
		l.log.Info("loading pdf", zap.String("file", filepath.Base(path)))
		pages, err := l.readPages(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		for i, text := range pages {
			if strings.TrimSpace(text) == "" {
				continue
			}
			label := strconv.Itoa(i + 1)
			docs = append(docs, domain.Document{
				ID:        documentID(path, label),
				Source:    path,
				PageLabel: label,
				Content:   text,
			})
		}
	}
	l.log.Info("loaded documents", zap.Int("pages", len(docs)), zap.Int("files", len(files)), zap.String("dir", dir))
	return docs, nil
}

func readPDFPages(path string) ([]string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	pages := make([]string, 0, total)
	for n := 1; n <= total; n++ {
		page := r.Page(n)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText(page))
	}
	return pages, nil
}

func pageText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err != nil {
		var b strings.Builder
		for _, t := range page.Content().Text {
			b.WriteString(t.S)
			b.WriteString(" ")
		}
		return strings.TrimSpace(b.String())
	}
	var b strings.Builder
	for _, row := range rows {
		words := make([]string, 0, len(row.Content))
		for _, w := range row.Content {
			if w.S != "" {
				words = append(words, w.S)
			}
		}
		if len(words) > 0 {
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func documentID(path, page string) string {
	h := sha1.Sum([]byte(path + "#" + page))
	return hex.EncodeToString(h[:8])
}
