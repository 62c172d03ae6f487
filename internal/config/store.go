package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"subtitle-assistant/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var (
	jsonCodec = codec{
		marshal:   func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
		unmarshal: json.Unmarshal,
	}
	tomlCodec = codec{marshal: toml.Marshal, unmarshal: toml.Unmarshal}
	yamlCodec = codec{marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}
)

// FileStore persists settings in a single file. The format follows the
// extension: .toml, .yaml/.yml, anything else is JSON.
type FileStore struct {
	path  string
	codec codec
}

// NewFileStore creates a settings store for path.
func NewFileStore(path string) *FileStore {
	c := jsonCodec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		c = tomlCodec
	case ".yaml", ".yml":
		c = yamlCodec
	}
	return &FileStore{path: path, codec: c}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Stored returns the settings assumed before anything is persisted: dark
// theme on, every other field empty.
func Stored() domain.Settings {
	return domain.Settings{IsDark: true}
}

// Load reads the stored settings. A missing file or a missing is_dark key
// keeps the Stored values. Use Normalize to fill the remaining defaults.
func (s *FileStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stored(), nil
		}

		return Stored(), err
	}

	cfg := Stored()
	if err := s.codec.unmarshal(data, &cfg); err != nil {
		return Stored(), fmt.Errorf("parse %s: %w", s.path, err)
	}

	return cfg, nil
}

// Save writes settings and creates parent directories.
func (s *FileStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := s.codec.marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// LoadOrDefault reads stored settings and falls back to Stored on any
// error. The error is still returned so callers can log it.
func LoadOrDefault(store Store) (domain.Settings, error) {
	cfg, err := store.Load()
	if err != nil {
		return Stored(), err
	}
	return cfg, nil
}
