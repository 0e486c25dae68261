package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_MissingFileIsEmpty(t *testing.T) {
	doc, err := OpenDocument(filepath.Join(t.TempDir(), "nested", "memz.json"))
	require.NoError(t, err)

	var items []string
	require.NoError(t, doc.View("items", &items))
	assert.Nil(t, items)
}

func TestDocument_UpdateKeepsOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memz.json")
	doc, err := OpenDocument(path)
	require.NoError(t, err)

	var a []string
	require.NoError(t, doc.Update("a", &a, func() error {
		a = append(a, "one")
		return nil
	}))
	var b map[string]int
	require.NoError(t, doc.Update("b", &b, func() error {
		b = map[string]int{"x": 1}
		return nil
	}))

	// Reopen to read from disk.
	doc2, err := OpenDocument(path)
	require.NoError(t, err)

	var gotA []string
	var gotB map[string]int
	require.NoError(t, doc2.View("a", &gotA))
	require.NoError(t, doc2.View("b", &gotB))
	assert.Equal(t, []string{"one"}, gotA)
	assert.Equal(t, map[string]int{"x": 1}, gotB)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp file should be renamed away")
}

func TestDocument_FailedUpdateWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memz.json")
	doc, err := OpenDocument(path)
	require.NoError(t, err)

	var items []string
	boom := errors.New("boom")
	err = doc.Update("items", &items, func() error {
		items = append(items, "lost")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDocument_CorruptFileIsBackedUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memz.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenDocument(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt JSON")

	_, statErr := os.Stat(path + ".corrupt")
	assert.NoError(t, statErr)
}
