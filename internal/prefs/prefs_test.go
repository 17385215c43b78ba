package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageDefault(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "prefs.yaml"))
	lang, err := s.Language()
	require.NoError(t, err)
	assert.Equal(t, DefaultLanguage, lang)
}

func TestSetLanguage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s := Open(path)

	require.NoError(t, s.SetLanguage("en"))
	lang, err := Open(path).Language()
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ocr_ink_language: en")

	assert.ErrorIs(t, s.SetLanguage("fr"), ErrUnsupportedLanguage)
}

func TestUnknownKeysSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("theme: dark\nocr_ink_language: xx\n"), 0o644))
	s := Open(path)

	lang, err := s.Language()
	require.NoError(t, err)
	assert.Equal(t, "vi", lang, "invalid stored values fall back to the default")

	require.NoError(t, s.SetLanguage("en"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "theme: dark")
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not: a map"), 0o644))

	lang, err := Open(path).Language()
	assert.Error(t, err)
	assert.Equal(t, DefaultLanguage, lang)
}
