// Package indexer splits extracted text into chunks and writes their embeddings to the vector index.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/tmc/langchaingo/textsplitter"
)

// Separators are tried in order: paragraph, line, sentence, word, character.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits text into overlapping chunks of at most chunkSize characters.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

// NewChunker creates a chunker with the given size and overlap, in characters.
// Non-positive values fall back to 1000 and 200; an overlap not smaller than the
// size is clamped to size-1.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = config.DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = config.DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(defaultSeparators),
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Size returns the maximum chunk length in characters.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split returns the chunks of text in document order. Blank pieces are dropped and
// the sequence index counts only the chunks that are kept.
func (c *Chunker) Split(text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		for _, part := range c.enforceSize(p) {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{Text: part, SequenceIndex: len(chunks)})
		}
	}
	return chunks, nil
}

// enforceSize cuts a piece that the splitter could not bring under the limit.
func (c *Chunker) enforceSize(piece string) []string {
	if utf8.RuneCountInString(piece) <= c.chunkSize {
		return []string{piece}
	}
	runes := []rune(piece)
	step := c.chunkSize - c.chunkOverlap
	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
