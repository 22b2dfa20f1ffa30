// Package prompt renders the question, retrieved context, and recent turns into one prompt.
package prompt

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const instruction = "You are a helpful assistant. Use the following context to answer the question. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// Build renders the prompt. It never truncates: the caller bounds the snippets
// through top_k and the turns through the conversation window.
func Build(snippets []string, question string, turns []models.ConversationTurn) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nPrevious conversation:\n")
	b.WriteString(FormatTurns(turns))
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(snippets, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// FormatTurns writes each turn as "Q: ...\nA: ..." and joins them with a newline.
// No turns yields "".
func FormatTurns(turns []models.ConversationTurn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = "Q: " + t.Question + "\nA: " + t.Answer
	}
	return strings.Join(parts, "\n")
}
