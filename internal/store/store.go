package store

import (
	"context"
	"errors"
	"time"
)

// ErrBadLogName is returned for transcript names that cannot be stored safely.
var ErrBadLogName = errors.New("invalid transcript name")

// TranscriptLine is one persisted line of a channel or private transcript.
type TranscriptLine struct {
	ID        int64
	Log       string // "#main.log" for channels, "<user>.log" for private chats
	Body      string
	CreatedAt time.Time
}

// TranscriptStore handles transcript persistence.
type TranscriptStore interface {
	// AppendTranscript adds a line to the named transcript.
	AppendTranscript(ctx context.Context, log, line string) error

	// ListTranscript returns up to limit of the newest lines, oldest first.
	// If beforeID is provided, returns lines older than that ID.
	ListTranscript(ctx context.Context, log string, limit int, beforeID *int64) ([]*TranscriptLine, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	TranscriptStore

	// Close releases the underlying resources.
	Close() error
}

// ValidLogName rejects empty names and anything that could escape a directory.
func ValidLogName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 {
			return false
		}
	}
	return true
}
