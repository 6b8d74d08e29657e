package service

import (
	"context"
	"errors"
	"strings"

	"cabot/internal/domain"
)

// letterEmbedder counts letters a-z; good enough to rank short test texts.
type letterEmbedder struct {
	calls int
	err   error
}

func (e *letterEmbedder) Name() string { return "letters" }

func (e *letterEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *letterEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

type fakeModel struct {
	reply    string
	err      error
	received [][]domain.Message
}

func (m *fakeModel) Complete(_ context.Context, messages []domain.Message) (string, error) {
	cp := make([]domain.Message, len(messages))
	copy(cp, messages)
	m.received = append(m.received, cp)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type fakeLoader struct {
	docs []domain.Document
	err  error
}

func (l *fakeLoader) LoadDir(string) ([]domain.Document, error) { return l.docs, l.err }

var errBoom = errors.New("boom")
