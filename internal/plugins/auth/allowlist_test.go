package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAllowList_Static(t *testing.T) {
	a, err := NewAllowList([]string{" Ann@Example.com ", "", "bob@example.com"}, "")
	require.NoError(t, err)

	assert.True(t, a.Allowed("ann@example.com"))
	assert.True(t, a.Allowed("ANN@EXAMPLE.COM"))
	assert.True(t, a.Allowed("bob@example.com"))
	assert.False(t, a.Allowed("eve@example.com"))
	assert.False(t, a.Allowed(""))
	assert.Equal(t, []string{"ann@example.com", "bob@example.com"}, a.Emails())
}

func TestAllowList_FileShapes(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"mapping", "emails:\n  - ann@example.com\n  - Bob@Example.com\n", []string{"ann@example.com", "bob@example.com"}},
		{"bare list", "- carol@example.com\n", []string{"carol@example.com"}},
		{"empty file", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			writeFile(t, path, tt.content)

			a, err := NewAllowList(nil, path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Emails())
		})
	}
}

func TestAllowList_MergesStaticAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.yaml")
	writeFile(t, path, "emails: [bob@example.com, ann@example.com]\n")

	a, err := NewAllowList([]string{"ann@example.com"}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com", "bob@example.com"}, a.Emails())
}

func TestAllowList_MissingFileIsEmpty(t *testing.T) {
	a, err := NewAllowList([]string{"ann@example.com"}, filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ann@example.com"}, a.Emails())
}

func TestAllowList_BadFileKeepsPreviousList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.yaml")
	writeFile(t, path, "emails: [ann@example.com]\n")

	a, err := NewAllowList(nil, path)
	require.NoError(t, err)

	writeFile(t, path, "emails: [unterminated\n")
	assert.Error(t, a.Reload())
	assert.True(t, a.Allowed("ann@example.com"))
}

func TestAllowList_BadFileAtStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.yaml")
	writeFile(t, path, "emails: {not: [a list\n")

	_, err := NewAllowList(nil, path)
	assert.Error(t, err)
}

func TestAllowList_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.yaml")
	writeFile(t, path, "emails: [ann@example.com]\n")

	a, err := NewAllowList(nil, path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Watch(ctx))

	writeFile(t, path, "emails: [bob@example.com]\n")

	assert.Eventually(t, func() bool {
		return a.Allowed("bob@example.com") && !a.Allowed("ann@example.com")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAllowList_WatchWithoutFile(t *testing.T) {
	a, err := NewAllowList([]string{"ann@example.com"}, "")
	require.NoError(t, err)
	assert.NoError(t, a.Watch(context.Background()))
}
