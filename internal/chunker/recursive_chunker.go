package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"cabot/internal/domain"
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text on the coarsest separator that keeps pieces
// under chunkSize characters, then merges neighbouring pieces back into
// chunks that share up to overlap characters. Each separator stays attached
// to the start of the piece that follows it.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap, separators: defaultSeparators}
}

func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	texts := c.SplitText(document.Content)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(i),
			Text:       text,
			Index:      i,
			PageLabel:  document.PageLabel,
			Source:     document.Source,
		})
	}
	return chunks, nil
}

// SplitText returns the chunk texts for text, in document order.
func (c *RecursiveChunker) SplitText(text string) []string {
	return c.split(text, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	pieces := splitKeep(text, separator)

	var out, good []string
	for _, p := range pieces {
		if runeLen(p) < c.chunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good, "")...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good, "")...)
	}
	return out
}

func (c *RecursiveChunker) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var docs, current []string
	total := 0
	join := func() {
		if doc := strings.TrimSpace(strings.Join(current, separator)); doc != "" {
			docs = append(docs, doc)
		}
	}
	for _, p := range pieces {
		n := runeLen(p)
		if total+n+sepIf(len(current) > 0, sepLen) > c.chunkSize && len(current) > 0 {
			join()
			for total > c.overlap || (total+n+sepIf(len(current) > 0, sepLen) > c.chunkSize && total > 0) {
				total -= runeLen(current[0]) + sepIf(len(current) > 1, sepLen)
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n + sepIf(len(current) > 1, sepLen)
	}
	join()
	return docs
}

// splitKeep splits text on separator, prefixing every piece after the first
// with the separator it followed. Empty pieces are dropped.
func splitKeep(text, separator string) []string {
	if separator == "" {
		return strings.Split(text, "")
	}
	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	if parts[0] != "" {
		out = append(out, parts[0])
	}
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}

func sepIf(cond bool, n int) int {
	if cond {
		return n
	}
	return 0
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
