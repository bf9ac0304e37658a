package placement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeywordsPartialOverrideKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	content := "spam:\n  - basura\n  - correo no deseado\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tables, err := LoadKeywords(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"basura", "correo no deseado"}, tables.Spam)
	// Tables absent from the file keep the built-in defaults.
	assert.Equal(t, DefaultKeywords().Promotions, tables.Promotions)
	assert.Equal(t, DefaultKeywords().Social, tables.Social)
}

func TestLoadKeywordsMissingFileReturnsDefaults(t *testing.T) {
	tables, err := LoadKeywords(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Equal(t, DefaultKeywords(), tables)
}

func TestLoadKeywordsMalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spam: {not a list"), 0o644))

	tables, err := LoadKeywords(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultKeywords(), tables)
}
