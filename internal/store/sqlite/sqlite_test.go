package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vovakirdan/chanserv/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewWithSetup(":memory:", EnsureSchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.AppendTranscript(ctx, "#main.log", fmt.Sprintf("<alice> line %d", i)); err != nil {
			t.Fatalf("AppendTranscript: %v", err)
		}
	}
	if err := s.AppendTranscript(ctx, "bob.log", "<ChanServ> hi"); err != nil {
		t.Fatalf("AppendTranscript: %v", err)
	}

	tests := []struct {
		name     string
		log      string
		limit    int
		expected []string
	}{
		{
			name:     "newest three in order",
			log:      "#main.log",
			limit:    3,
			expected: []string{"<alice> line 2", "<alice> line 3", "<alice> line 4"},
		},
		{
			name:     "private log isolated",
			log:      "bob.log",
			limit:    10,
			expected: []string{"<ChanServ> hi"},
		},
		{
			name:     "unknown log",
			log:      "#nope.log",
			limit:    10,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := s.ListTranscript(ctx, tt.log, tt.limit, nil)
			if err != nil {
				t.Fatalf("ListTranscript failed: %v", err)
			}
			if len(lines) != len(tt.expected) {
				t.Fatalf("expected %d lines, got %d", len(tt.expected), len(lines))
			}
			for i, l := range lines {
				if l.Body != tt.expected[i] {
					t.Errorf("line %d: expected %q, got %q", i, tt.expected[i], l.Body)
				}
				if l.Log != tt.log {
					t.Errorf("line %d: wrong log %q", i, l.Log)
				}
			}
		})
	}
}

func TestListTranscriptBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := s.AppendTranscript(ctx, "#main.log", fmt.Sprintf("%d", i)); err != nil {
			t.Fatalf("AppendTranscript: %v", err)
		}
	}
	newest, err := s.ListTranscript(ctx, "#main.log", 1, nil)
	if err != nil || len(newest) != 1 {
		t.Fatalf("ListTranscript: %v (%d lines)", err, len(newest))
	}
	older, err := s.ListTranscript(ctx, "#main.log", 10, &newest[0].ID)
	if err != nil {
		t.Fatalf("ListTranscript before: %v", err)
	}
	if len(older) != 3 || older[2].Body != "2" {
		t.Fatalf("unexpected page: %d lines", len(older))
	}
}

func TestAppendRejectsBadName(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendTranscript(context.Background(), "../etc/passwd", "x")
	if !errors.Is(err, store.ErrBadLogName) {
		t.Fatalf("expected ErrBadLogName, got %v", err)
	}
}
