package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rovshanmuradov/solana-sniper/internal/ledger"
)

// PositionStore persists open positions to a JSON file. It is a restart cache,
// not a source of truth.
type PositionStore struct {
	mu   sync.Mutex
	path string
}

func NewPositionStore(path string) *PositionStore {
	return &PositionStore{path: path}
}

// Path returns the backing file.
func (s *PositionStore) Path() string { return s.path }

// Save rewrites the file atomically.
func (s *PositionStore) Save(positions []ledger.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positions == nil {
		positions = []ledger.Position{}
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write positions: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Load reads the file. A missing file yields no positions.
func (s *PositionStore) Load() ([]ledger.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	var positions []ledger.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}
