package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/artifact/storetest"
	"github.com/hupe1980/llmflow/core"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStore_Contract(t *testing.T) {
	storetest.RunContract(t, newFileStore(t))
}

func TestFileStore_Layout(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	_, err := s.Save(ctx, core.NewArtifact("out/code.js", []byte("v1"), core.ContentText))
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(s.Root(), "out", "code.js"))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(content))
	_, err = os.Stat(filepath.Join(s.Root(), "out", "code.js.metadata"))
	require.NoError(t, err)
}

func TestFileStore_BackupOnOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	md, err := s.Save(ctx, core.NewArtifact("a.txt", []byte("v1"), core.ContentText))
	require.NoError(t, err)
	a := core.NewArtifact("a.txt", []byte("v2"), core.ContentText)
	a.Metadata.Version = md.Version
	_, err = s.Save(ctx, a)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "a.txt"))

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "a.txt.") && strings.HasSuffix(e.Name(), ".bak") {
			backups++
		}
	}
	assert.Equal(t, 2, backups)
}

func TestFileStore_ContentWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "plain.txt"), []byte("hand written"), 0o644))

	md, err := s.LatestMetadata(ctx, "plain.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, md.Version)
	assert.Equal(t, core.ContentText, md.ContentType)
	assert.Positive(t, md.Timestamp)

	// version 0 is the observed version, so a save goes through
	next, err := s.Save(ctx, core.NewArtifact("plain.txt", []byte("generated"), core.ContentText))
	require.NoError(t, err)
	assert.Equal(t, 1, next.Version)
	assert.Greater(t, next.Timestamp, md.Timestamp)
}

func TestFileStore_InvalidPaths(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	for _, name := range []string{"../escape.txt", "/abs.txt", "a/../../b", ""} {
		_, err := s.Save(ctx, core.NewArtifact(name, []byte("x"), core.ContentText))
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
}

func TestFileStore_Sub(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	_, err := s.Sub(".hidden")
	assert.ErrorIs(t, err, ErrInvalidPath)

	sub, err := s.Sub("run1")
	require.NoError(t, err)
	_, err = sub.Save(ctx, core.NewArtifact("x.txt", []byte("x"), core.ContentText))
	require.NoError(t, err)

	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"run1/x.txt"}, names)
}
