// Package knowledge implements a minimal in-memory note index backing the
// index_note/search_knowledge RPC operations. Ranking internals are
// deliberately simple: this is a narrow store behind an interface, not a
// full-text search engine.
package knowledge

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Note is one indexed knowledge entry.
type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a process-local note index.
type Store struct {
	mu    sync.Mutex
	notes []Note
}

func New() *Store {
	return &Store{}
}

// Index records a new note, assigning id and timestamp.
func (s *Store) Index(author, title, content string, tags []string) Note {
	n := Note{
		ID:        uuid.NewString(),
		Author:    author,
		Title:     title,
		Content:   content,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.notes = append(s.notes, n)
	s.mu.Unlock()
	return n
}

// Search returns notes whose title, content, or tags case-insensitively
// contain query, most recent first, capped at limit (default 20).
func (s *Store) Search(query string, limit int) []Note {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Note
	for i := len(s.notes) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.notes[i]
		if needle == "" || matches(n, needle) {
			out = append(out, n)
		}
	}
	return out
}

func matches(n Note, needle string) bool {
	if strings.Contains(strings.ToLower(n.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(n.Content), needle) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}
