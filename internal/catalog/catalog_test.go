package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Experts)
	require.NotEmpty(t, c.Options)

	p, ok := c.Expert("Joanna")
	require.True(t, ok)
	require.NotEmpty(t, p.Avatar)

	_, ok = c.Option("Mock Interview")
	require.True(t, ok)
}

func TestExpertLookupIsExactAndFirstMatchWins(t *testing.T) {
	c, err := Parse(strings.NewReader(`
experts:
  - name: Joey
    avatar: a.png
    category: first
  - name: Joey
    avatar: b.png
    category: second
`))
	require.NoError(t, err)

	p, ok := c.Expert("Joey")
	require.True(t, ok)
	require.Equal(t, "first", p.Category)

	_, ok = c.Expert("joey")
	require.False(t, ok)
	_, ok = c.Expert("Nobody")
	require.False(t, ok)

	require.Equal(t, []string{"expert:Joey"}, c.Duplicates())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`
experts:
  - name: Joey
    voice: deep
`))
	require.Error(t, err)
}

func TestParseRejectsEmptyCatalog(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	require.Error(t, err)

	_, err = Parse(strings.NewReader("coaching_options: []\nexperts: []\n"))
	require.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("experts:\n  - name: Ada\n    avatar: ada.png\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Expert("Ada")
	require.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
