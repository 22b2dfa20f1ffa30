package models

import (
	"fmt"
	"strings"
)

// QueryRequest is the body of a question sent to the service.
type QueryRequest struct {
	Query string `json:"query"`
}

// Validate trims the question and rejects an empty one.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// ConversationTurn is one completed question/answer exchange.
type ConversationTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
