// Package prompt assembles the message list sent to the chat model.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"cabot/internal/domain"
)

// CASupport is the system instruction for the CA customer-support assistant.
//
//go:embed ca_support.md
var CASupport string

const (
	chunkSeparator = "\n\n\n"
	missing        = "N/A"
)

// BuildContext renders retrieved chunks as one context block, in retrieval order.
// No results yield the empty string.
func BuildContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("Page Content: %s\nPage Number: %s\nFile Location: %s",
			r.Chunk.Text, orMissing(r.Chunk.PageLabel), orMissing(r.Chunk.Source)))
	}
	return strings.Join(parts, chunkSeparator)
}

// SystemMessage combines the instruction with a context block.
func SystemMessage(systemPrompt, contextBlock string) domain.Message {
	return domain.Message{
		Role:    domain.RoleSystem,
		Content: strings.TrimSpace(systemPrompt) + "\n\nContext:\n" + contextBlock,
	}
}

// BuildMessages orders the request as [system, history..., user].
// history is copied, never aliased.
func BuildMessages(systemPrompt string, results []domain.SearchResult, history []domain.Message, query string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, SystemMessage(systemPrompt, BuildContext(results)))
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: query})
	return msgs
}

func orMissing(s string) string {
	if s == "" {
		return missing
	}
	return s
}
