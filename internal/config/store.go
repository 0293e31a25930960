package config

import (
	"sync"        // Guards the listener list
	"sync/atomic" // Snapshot swap
)

// Store holds the live configuration snapshot. Readers always get a whole
// snapshot; Reload replaces it in one atomic swap.
type Store struct {
	current   atomic.Pointer[Config]
	mu        sync.Mutex
	listeners []func(*Config)
	load      func() (*Config, error)
}

// NewStore wraps an already loaded configuration
func NewStore(cfg *Config) *Store {
	s := &Store{load: LoadConfig}
	s.current.Store(cfg)
	return s
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// OnChange registers fn to run after every successful swap
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the environment and swaps the snapshot. On error the
// previous snapshot stays in place.
func (s *Store) Reload() error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	s.Swap(cfg)
	return nil
}

// Swap installs cfg and notifies listeners
func (s *Store) Swap(cfg *Config) {
	s.current.Store(cfg)
	s.mu.Lock()
	listeners := append([]func(*Config){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}
