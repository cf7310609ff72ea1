package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempBook(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlainTextExtractor_Extract(t *testing.T) {
	e := NewPlainTextExtractor()

	t.Run("Form feeds split pages", func(t *testing.T) {
		path := writeTempBook(t, "book.txt", "page one\fpage two\fpage three")

		content, err := e.Extract(context.Background(), path)
		require.NoError(t, err)

		require.Len(t, content.Pages, 3)
		assert.Equal(t, "page one", content.Pages[0].Content)
		assert.Equal(t, 2, content.Pages[1].Page)
		assert.Equal(t, 3, content.Metadata.Pages)
		assert.Equal(t, "book", content.Metadata.Title)
	})

	t.Run("Long text chunked into fixed pages", func(t *testing.T) {
		path := writeTempBook(t, "long.txt", strings.Repeat("a", pageSize*2+10))

		content, err := e.Extract(context.Background(), path)
		require.NoError(t, err)

		require.Len(t, content.Pages, 3)
		assert.Len(t, content.Pages[0].Content, pageSize)
		assert.Len(t, content.Pages[2].Content, 10)
	})

	t.Run("Empty file yields one placeholder page", func(t *testing.T) {
		path := writeTempBook(t, "empty.txt", "")

		content, err := e.Extract(context.Background(), path)
		require.NoError(t, err)

		require.Len(t, content.Pages, 1)
		assert.Contains(t, content.Pages[0].Content, "no extractable text")
	})

	t.Run("Missing file is an error", func(t *testing.T) {
		_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
		assert.Error(t, err)
	})
}
