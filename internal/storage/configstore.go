package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ConfigStore keeps environment -> key -> value in memory and mirrors it to a
// single JSON file. One mutex serialises every operation, including the file
// write that follows a mutation.
type ConfigStore struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	envs map[string]map[string]string
}

// Option configures a ConfigStore.
type Option func(*ConfigStore)

// WithLogger sets the logger used to report load failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ConfigStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty store backed by path. The file is not read until Load.
func New(path string, opts ...Option) *ConfigStore {
	s := &ConfigStore{
		path:   path,
		logger: zap.NewNop(),
		envs:   make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open is New followed by Load.
func Open(path string, opts ...Option) *ConfigStore {
	s := New(path, opts...)
	s.Load()
	return s
}

// Path returns the backing file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Get returns the value stored under env/key.
func (s *ConfigStore) Get(env, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.envs[env][key]
	return value, ok
}

// GetAll returns a copy of the environment's values, or false if the
// environment was never created.
func (s *ConfigStore) GetAll(env string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.envs[env]
	if !ok {
		return nil, false
	}
	return maps.Clone(values), true
}

// Set stores value under env/key, creating the environment if needed, and
// rewrites the backing file. On a save error the in-memory change is kept.
func (s *ConfigStore) Set(env, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.envs[env]
	if !ok {
		values = make(map[string]string)
		s.envs[env] = values
	}
	values[key] = value

	return s.saveLocked()
}

// Delete removes env/key if present and rewrites the backing file either way.
// Empty environments are kept.
func (s *ConfigStore) Delete(env, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if values, ok := s.envs[env]; ok {
		delete(values, key)
	}

	return s.saveLocked()
}

// ListEnvironments returns the known environment names in sorted order.
func (s *ConfigStore) ListEnvironments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	envs := make([]string, 0, len(s.envs))
	for env := range s.envs {
		envs = append(envs, env)
	}
	slices.Sort(envs)
	return envs
}

// Load replaces the in-memory store with the contents of the backing file.
// Failures are logged and leave the current contents untouched.
func (s *ConfigStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	envs, err := s.readFile()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("config file not found, keeping current store", zap.String("path", s.path))
			return
		}
		s.logger.Error("failed to load config", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.envs = envs
}

func (s *ConfigStore) readFile() (map[string]map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	envs := make(map[string]map[string]string)
	if len(raw) == 0 {
		return envs, nil
	}
	if err := json.Unmarshal(raw, &envs); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if envs == nil {
		envs = make(map[string]map[string]string)
	}
	for env, values := range envs {
		if values == nil {
			envs[env] = make(map[string]string)
		}
	}
	return envs, nil
}

// saveLocked serialises the whole store and replaces the backing file.
// Callers must hold s.mu.
func (s *ConfigStore) saveLocked() error {
	raw, err := json.MarshalIndent(s.envs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := atomicWrite(s.path, raw); err != nil {
		return fmt.Errorf("save config %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*ConfigStore)(nil)
