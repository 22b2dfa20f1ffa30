// Package conversation keeps the in-memory question/answer log of the running process.
package conversation

import (
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// State is an append-only log of turns, safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	turns    []models.ConversationTurn
	maxTurns int
}

// NewState returns an empty log. When maxTurns is positive the oldest turns are
// dropped once the log grows past it; zero keeps every turn.
func NewState(maxTurns int) *State {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &State{maxTurns: maxTurns}
}

// Append adds one turn to the end of the log.
func (s *State) Append(question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, models.ConversationTurn{Question: question, Answer: answer})
	if s.maxTurns > 0 && len(s.turns) > s.maxTurns {
		kept := make([]models.ConversationTurn, s.maxTurns)
		copy(kept, s.turns[len(s.turns)-s.maxTurns:])
		s.turns = kept
	}
}

// Recent returns up to the last n turns, oldest first. n <= 0 returns nothing.
func (s *State) Recent(n int) []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.turns) == 0 {
		return []models.ConversationTurn{}
	}
	start := len(s.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]models.ConversationTurn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// All returns a copy of the full log.
func (s *State) All() []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Clear empties the log.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// Len returns the number of turns in the log.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}
