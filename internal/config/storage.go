package config

import (
	"fmt"
	"sync"

	"github.com/vovakirdan/chanserv/internal/core"
)

// FileStorage writes the channel registry back into the config file,
// leaving every other setting as it was loaded.
type FileStorage struct {
	mu   sync.Mutex
	path string
	base Config
}

// NewFileStorage persists into path using base for all non-registry fields.
func NewFileStorage(path string, base Config) *FileStorage {
	return &FileStorage{path: path, base: base}
}

// Path returns the file being written.
func (s *FileStorage) Path() string {
	return s.path
}

// SaveChannels implements core.Persister.
func (s *FileStorage) SaveChannels(channels []*core.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.base
	snapshot.Channels = ChannelsFromCore(channels)
	if err := writeConfig(s.path, snapshot); err != nil {
		return fmt.Errorf("save config %s: %w", s.path, err)
	}
	s.base = snapshot
	return nil
}

var _ core.Persister = (*FileStorage)(nil)
