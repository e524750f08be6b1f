package config

import (
	"sync"
	"sync/atomic"
)

// Watcher is notified after a new config has been committed.
type Watcher func(newCfg *Config, changed map[string]bool)

// Validator vetoes a candidate config before it is committed.
type Validator func(newCfg *Config, changed map[string]bool) error

// Store holds the live config. Readers call Get on every use so Apollo
// updates take effect without a restart.
type Store struct {
	v          atomic.Pointer[Config]
	mu         sync.RWMutex
	watchers   []Watcher
	validators []Validator
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.v.Store(cfg)
	return s
}

func (s *Store) Get() *Config {
	return s.v.Load()
}

// Update commits newCfg unconditionally and notifies watchers.
func (s *Store) Update(newCfg *Config, changed map[string]bool) {
	s.v.Store(newCfg)
	s.mu.RLock()
	ws := append([]Watcher(nil), s.watchers...)
	s.mu.RUnlock()
	for _, w := range ws {
		w(newCfg, changed)
	}
}

func (s *Store) Watch(w Watcher) {
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()
}

// AddValidator registers a validator. If any validator returns error on update, the update will be discarded.
func (s *Store) AddValidator(v Validator) {
	s.mu.Lock()
	s.validators = append(s.validators, v)
	s.mu.Unlock()
}

// UpdateValidated runs Validate and the registered validators before committing.
// A rejected update leaves the current config in place.
func (s *Store) UpdateValidated(newCfg *Config, changed map[string]bool) error {
	if err := Validate(newCfg); err != nil {
		return err
	}
	s.mu.RLock()
	vals := append([]Validator(nil), s.validators...)
	s.mu.RUnlock()
	for _, v := range vals {
		if err := v(newCfg, changed); err != nil {
			return err
		}
	}
	s.Update(newCfg, changed)
	return nil
}

func cloneConfig(in *Config) *Config {
	out := *in
	return &out
}
