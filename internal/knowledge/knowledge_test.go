package knowledge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexAndSearchByTitle(t *testing.T) {
	s := New()
	s.Index("alice", "Deploy runbook", "Steps to deploy the hub daemon", []string{"ops"})
	s.Index("bob", "Routing notes", "How the capability router scores agents", []string{"routing"})

	results := s.Search("deploy", 10)
	require.Len(t, results, 1)
	require.Equal(t, "alice", results[0].Author)
}

func TestSearchByTagIsCaseInsensitive(t *testing.T) {
	s := New()
	s.Index("alice", "Note", "body text", []string{"Routing"})

	results := s.Search("routing", 10)
	require.Len(t, results, 1)
}

func TestSearchEmptyQueryReturnsAllMostRecentFirst(t *testing.T) {
	s := New()
	s.Index("alice", "first", "one", nil)
	s.Index("alice", "second", "two", nil)

	results := s.Search("", 10)
	require.Len(t, results, 2)
	require.Equal(t, "second", results[0].Title)
}

func TestSearchRespectsLimit(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Index("alice", "note", "body", nil)
	}
	results := s.Search("", 2)
	require.Len(t, results, 2)
}
