package prompt

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestFormatTurns(t *testing.T) {
	if got := FormatTurns(nil); got != "" {
		t.Errorf("no turns should format as empty, got %q", got)
	}
	turns := []models.ConversationTurn{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}
	want := "Q: q1\nA: a1\nQ: q2\nA: a2"
	if got := FormatTurns(turns); got != want {
		t.Errorf("FormatTurns = %q, want %q", got, want)
	}
}

func TestBuild(t *testing.T) {
	turns := []models.ConversationTurn{{Question: "Hi?", Answer: "Hello."}}
	p := Build([]string{"The sky is blue.", "Grass is green."}, "What color is the sky?", turns)

	for _, want := range []string{
		"don't know",
		"Previous conversation:\nQ: Hi?\nA: Hello.",
		"Context:\nThe sky is blue.\n\nGrass is green.",
		"Question: What color is the sky?",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Index(p, "Previous conversation:") > strings.Index(p, "Context:") ||
		strings.Index(p, "Context:") > strings.Index(p, "Question:") {
		t.Error("sections out of order")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a := Build([]string{"x"}, "q", nil)
	b := Build([]string{"x"}, "q", nil)
	if a != b {
		t.Error("Build should be deterministic")
	}
	if !strings.Contains(a, "Previous conversation:\n\n\nContext:") {
		t.Errorf("empty history should render as an empty section:\n%q", a)
	}
}
