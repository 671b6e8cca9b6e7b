// Package session defines dialogue session state and its storage
// contract. A session carries the working form for the query under
// construction plus the turn transcript the classifier reads.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Turn is one utterance in a dialogue.
type Turn struct {
	FromUser bool      `json:"from_user"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

// Session is the persistent state of one conversation.
type Session struct {
	ID        string          `json:"id"`
	Cube      string          `json:"cube,omitempty"`
	FormState json.RawMessage `json:"form_state,omitempty"`
	Turns     []Turn          `json:"turns,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AppendTurn records an utterance on the session.
func (s *Session) AppendTurn(fromUser bool, content string) {
	s.Turns = append(s.Turns, Turn{FromUser: fromUser, Content: content, At: time.Now().UTC()})
}

// ResetQuery clears the working form so a new question starts from a
// blank slate while the transcript is kept.
func (s *Session) ResetQuery() {
	s.Cube = ""
	s.FormState = nil
}

// ErrNotFound indicates the requested session does not exist.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// ListOptions controls pagination for session listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// StoreStats summarizes the session store.
type StoreStats struct {
	TotalSessions    int64 `json:"total_sessions"`
	StorageSizeBytes int64 `json:"storage_size_bytes"`
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts *ListOptions) ([]*Session, error)
	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}
