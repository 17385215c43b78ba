// Package prefs persists the desk's UI preferences in a small YAML file.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// LanguageKey is the persisted key of the UI language.
const LanguageKey = "ocr_ink_language"

// Supported UI languages.
var Languages = []string{"en", "vi"}

// DefaultLanguage is used when nothing valid is stored.
const DefaultLanguage = "vi"

// ErrUnsupportedLanguage is returned when setting a language outside Languages.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Store reads and writes preferences. Values are kept as a flat key map
// so unknown keys written by other tools survive a rewrite.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a store backed by path. The file is created on first write.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Language returns the stored UI language, or the default when unset or invalid.
func (s *Store) Language() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return DefaultLanguage, err
	}
	if lang := values[LanguageKey]; slices.Contains(Languages, lang) {
		return lang, nil
	}
	return DefaultLanguage, nil
}

// SetLanguage stores lang, which must be one of Languages.
func (s *Store) SetLanguage(lang string) error {
	if !slices.Contains(Languages, lang) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[LanguageKey] = lang
	return s.write(values)
}

func (s *Store) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return values, fmt.Errorf("read prefs: %w", err)
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return map[string]string{}, fmt.Errorf("parse prefs %s: %w", s.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *Store) write(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
