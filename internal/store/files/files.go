// Package files keeps transcripts as plain append-only text files, one per log.
package files

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/chanserv/internal/store"
)

const stampLayout = "2006-01-02 15:04:05"

// FileStore implements store.Store on a directory of text files.
type FileStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates dir if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Close is a no-op; files are opened per append.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) AppendTranscript(ctx context.Context, log, line string) error {
	if !store.ValidLogName(log) {
		return fmt.Errorf("%w: %q", store.ErrBadLogName, log)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, log), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	entry := s.now().UTC().Format(stampLayout) + " " + strings.ReplaceAll(line, "\n", " ") + "\n"
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// ListTranscript reads the file back. Line numbers serve as IDs.
func (s *FileStore) ListTranscript(ctx context.Context, log string, limit int, beforeID *int64) ([]*store.TranscriptLine, error) {
	if !store.ValidLogName(log) {
		return nil, fmt.Errorf("%w: %q", store.ErrBadLogName, log)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, log))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var lines []*store.TranscriptLine
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id++
		if beforeID != nil && id >= *beforeID {
			break
		}
		lines = append(lines, parseLine(id, log, sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}

func parseLine(id int64, log, raw string) *store.TranscriptLine {
	l := &store.TranscriptLine{ID: id, Log: log, Body: raw}
	if len(raw) > len(stampLayout) {
		if ts, err := time.Parse(stampLayout, raw[:len(stampLayout)]); err == nil {
			l.CreatedAt = ts
			l.Body = raw[len(stampLayout)+1:]
		}
	}
	return l
}

var _ store.Store = (*FileStore)(nil)
