package memory

import (
	"sync"

	"go.uber.org/zap"
)

// Store keeps preferences in process memory; nothing survives a restart.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	log    *zap.Logger
}

func New(logger *zap.Logger) *Store {
	return &Store{values: make(map[string]string), log: logger}
}

func (s *Store) Close() error {
	return nil
}
