package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/logging"
)

func TestListExperts(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listExperts(&out, cat))
	text := out.String()
	require.Contains(t, text, "COACHING OPTION")
	require.Contains(t, text, "Mock Interview")
	for _, e := range cat.Experts {
		require.Contains(t, text, e.Name)
	}
}

func TestOverride(t *testing.T) {
	v := "from-env"
	override(&v, "")
	require.Equal(t, "from-env", v)
	override(&v, "from-flag")
	require.Equal(t, "from-flag", v)
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	yaml := strings.Join([]string{
		"coaching_options:",
		"  - name: Mock Interview",
		"    icon: /static/interview.png",
		"    prompt: You are an interviewer for {user_topic}.",
		"experts:",
		"  - name: Joey",
		"    avatar: /static/t2.jpg",
		"    category: interview",
		"  - name: Joey",
		"    avatar: /static/t3.jpg",
		"    category: interview",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cat, err := loadCatalog(path, logging.Discard())
	require.NoError(t, err)
	p, ok := cat.Expert("Joey")
	require.True(t, ok)
	require.Equal(t, "/static/t2.jpg", p.Avatar)
}
